// Package config loads service configuration from defaults, an optional
// YAML file and environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig       `yaml:"service"`
	STT           STTConfig           `yaml:"stt"`
	Capture       CaptureConfig       `yaml:"capture"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Gemini        GeminiConfig        `yaml:"gemini"`
	Whisper       WhisperConfig       `yaml:"whisper"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	NATS          NATSConfig          `yaml:"nats"`
	Store         StoreConfig         `yaml:"store"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServiceConfig struct {
	Principal   string `yaml:"principal"`
	GRPCPort    string `yaml:"grpcPort"`
	HTTPPort    string `yaml:"httpPort"`
	MetricsPort string `yaml:"metricsPort"`
}

// STTConfig selects and tunes the recognition engine.
type STTConfig struct {
	Provider       string `yaml:"provider"` // mock, google
	LanguageCode   string `yaml:"languageCode"`
	SampleRateHz   int32  `yaml:"sampleRateHz"`
	InterimResults bool   `yaml:"interimResults"`
	AudioEncoding  string `yaml:"audioEncoding"`
	Model          string `yaml:"model"`
}

type CaptureConfig struct {
	RestartBackoff  time.Duration `yaml:"restartBackoff"`
	DefaultLanguage string        `yaml:"defaultLanguage"`
}

type AnalysisConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Timeout  time.Duration `yaml:"timeout"`
}

type GeminiConfig struct {
	BaseURL     string   `yaml:"baseURL"`
	APIKey      string   `yaml:"apiKey"`
	Models      []string `yaml:"models"`
	Temperature float64  `yaml:"temperature"`
}

type WhisperConfig struct {
	BaseURL string   `yaml:"baseURL"`
	APIKey  string   `yaml:"apiKey"`
	Models  []string `yaml:"models"`
}

// UpstreamConfig bounds calls to the hosted AI providers.
type UpstreamConfig struct {
	Timeout             time.Duration `yaml:"timeout"`
	MaxRateLimitRetries int           `yaml:"maxRateLimitRetries"`
	MaxRetryDelay       time.Duration `yaml:"maxRetryDelay"`
}

type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	TopicPartial  string   `yaml:"topicPartial"`
	TopicFinal    string   `yaml:"topicFinal"`
	TopicAnalysis string   `yaml:"topicAnalysis"`
	Principal     string   `yaml:"principal"`
}

// NATSConfig configures the optional event mirror. No servers disables it.
type NATSConfig struct {
	Servers       []string `yaml:"servers"`
	SubjectPrefix string   `yaml:"subjectPrefix"`
	Token         string   `yaml:"token"`
}

type StoreConfig struct {
	Path               string `yaml:"path"`
	RetentionDays      int    `yaml:"retentionDays"`
	MaxPerConsultation int    `yaml:"maxPerConsultation"`
}

type ObservabilityConfig struct {
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Default returns the built-in configuration.
func Default() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal:   "consult-transcript-service",
			GRPCPort:    "50051",
			HTTPPort:    "8080",
			MetricsPort: "9090",
		},
		STT: STTConfig{
			Provider:       "mock",
			LanguageCode:   "en-IN",
			SampleRateHz:   16000,
			InterimResults: true,
			AudioEncoding:  "LINEAR16",
		},
		Capture: CaptureConfig{
			RestartBackoff:  time.Second,
			DefaultLanguage: "auto",
		},
		Analysis: AnalysisConfig{
			Debounce: 2 * time.Second,
			Timeout:  60 * time.Second,
		},
		Gemini: GeminiConfig{
			BaseURL:     "https://generativelanguage.googleapis.com",
			Models:      []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"},
			Temperature: 0.2,
		},
		Whisper: WhisperConfig{
			BaseURL: "https://api.openai.com",
			Models:  []string{"whisper-1", "gpt-4o-transcribe", "gpt-4o-mini-transcribe"},
		},
		Upstream: UpstreamConfig{
			Timeout:             60 * time.Second,
			MaxRateLimitRetries: 5,
			MaxRetryDelay:       30 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			TopicPartial:  "consult.transcript.partial",
			TopicFinal:    "consult.transcript.final",
			TopicAnalysis: "consult.analysis",
		},
		NATS: NATSConfig{
			SubjectPrefix: "consult",
		},
		Store: StoreConfig{
			RetentionDays:      30,
			MaxPerConsultation: 100,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load builds the configuration. path names an optional YAML file; when
// empty, CONFIG_FILE is consulted.
func Load(path string) (*Configuration, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Configuration) {
	cfg.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", cfg.Service.Principal)
	cfg.Service.GRPCPort = envOrDefault("GRPC_PORT", cfg.Service.GRPCPort)
	cfg.Service.HTTPPort = envOrDefault("HTTP_PORT", cfg.Service.HTTPPort)
	cfg.Service.MetricsPort = envOrDefault("METRICS_PORT", cfg.Service.MetricsPort)

	cfg.STT.Provider = envOrDefault("STT_PROVIDER", cfg.STT.Provider)
	cfg.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", cfg.STT.LanguageCode)
	cfg.STT.SampleRateHz = int32(envOrDefaultInt("STT_SAMPLE_RATE_HZ", int(cfg.STT.SampleRateHz)))
	cfg.STT.InterimResults = envOrDefaultBool("STT_INTERIM_RESULTS", cfg.STT.InterimResults)
	cfg.STT.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", cfg.STT.AudioEncoding)
	cfg.STT.Model = envOrDefault("STT_MODEL", cfg.STT.Model)

	cfg.Capture.RestartBackoff = envOrDefaultDuration("CAPTURE_RESTART_BACKOFF", cfg.Capture.RestartBackoff)
	cfg.Capture.DefaultLanguage = envOrDefault("CAPTURE_DEFAULT_LANGUAGE", cfg.Capture.DefaultLanguage)

	cfg.Analysis.Debounce = envOrDefaultDuration("ANALYSIS_DEBOUNCE", cfg.Analysis.Debounce)
	cfg.Analysis.Timeout = envOrDefaultDuration("ANALYSIS_TIMEOUT", cfg.Analysis.Timeout)

	cfg.Gemini.BaseURL = envOrDefault("GEMINI_BASE_URL", cfg.Gemini.BaseURL)
	cfg.Gemini.APIKey = envOrDefault("GEMINI_API_KEY", cfg.Gemini.APIKey)
	cfg.Gemini.Models = envOrDefaultList("GEMINI_MODELS", cfg.Gemini.Models)
	cfg.Gemini.Temperature = envOrDefaultFloat("GEMINI_TEMPERATURE", cfg.Gemini.Temperature)

	cfg.Whisper.BaseURL = envOrDefault("WHISPER_BASE_URL", cfg.Whisper.BaseURL)
	cfg.Whisper.APIKey = envOrDefault("OPENAI_API_KEY", cfg.Whisper.APIKey)
	cfg.Whisper.Models = envOrDefaultList("WHISPER_MODELS", cfg.Whisper.Models)

	cfg.Upstream.Timeout = envOrDefaultDuration("UPSTREAM_TIMEOUT", cfg.Upstream.Timeout)
	cfg.Upstream.MaxRateLimitRetries = envOrDefaultInt("UPSTREAM_MAX_RATE_LIMIT_RETRIES", cfg.Upstream.MaxRateLimitRetries)
	cfg.Upstream.MaxRetryDelay = envOrDefaultDuration("UPSTREAM_MAX_RETRY_DELAY", cfg.Upstream.MaxRetryDelay)

	cfg.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	cfg.Kafka.Brokers = envOrDefaultList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.TopicPartial = envOrDefault("KAFKA_TOPIC_PARTIAL", cfg.Kafka.TopicPartial)
	cfg.Kafka.TopicFinal = envOrDefault("KAFKA_TOPIC_FINAL", cfg.Kafka.TopicFinal)
	cfg.Kafka.TopicAnalysis = envOrDefault("KAFKA_TOPIC_ANALYSIS", cfg.Kafka.TopicAnalysis)
	cfg.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", cfg.Kafka.Principal)
	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Service.Principal
	}

	cfg.NATS.Servers = envOrDefaultList("NATS_SERVERS", cfg.NATS.Servers)
	cfg.NATS.SubjectPrefix = envOrDefault("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)
	cfg.NATS.Token = envOrDefault("NATS_TOKEN", cfg.NATS.Token)

	cfg.Store.Path = envOrDefault("STORE_PATH", cfg.Store.Path)
	cfg.Store.RetentionDays = envOrDefaultInt("STORE_RETENTION_DAYS", cfg.Store.RetentionDays)
	cfg.Store.MaxPerConsultation = envOrDefaultInt("STORE_MAX_PER_CONSULTATION", cfg.Store.MaxPerConsultation)

	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogLevel = envOrDefault("ZEROLOG_LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = envOrDefault("LOG_FORMAT", cfg.Observability.LogFormat)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envOrDefaultList splits a comma separated value, dropping empty items.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
