package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"consult-transcript-service/internal/config"
	"consult-transcript-service/internal/events"
	"consult-transcript-service/internal/models"
	"consult-transcript-service/internal/observability/logging"
	"consult-transcript-service/internal/observability/metrics"
	"consult-transcript-service/internal/schema"
	"consult-transcript-service/internal/service/consultation"
	"consult-transcript-service/internal/service/gemini"
	"consult-transcript-service/internal/service/stt"
	"consult-transcript-service/internal/service/stt/google"
	"consult-transcript-service/internal/service/stt/mock"
	"consult-transcript-service/internal/service/transcription"
	"consult-transcript-service/internal/service/upstream"
	"consult-transcript-service/internal/store"
	"consult-transcript-service/internal/stream"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Metrics     *metrics.Metrics

	Publisher     *events.Publisher
	Store         *store.Store
	Hub           *stream.Hub
	Transcriber   *transcription.Service
	Analyzer      *gemini.Client
	Consultations *consultation.Manager

	cancel context.CancelFunc
}

// New constructs a new Application from the provided configuration.
func New(ctx context.Context, cfg *config.Configuration) (*Application, error) {
	a := &Application{
		Cfg:     cfg,
		Metrics: metrics.DefaultMetrics,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	a.Publisher = events.New(&events.Config{
		Enabled:       cfg.Kafka.Enabled,
		Brokers:       cfg.Kafka.Brokers,
		TopicPartial:  cfg.Kafka.TopicPartial,
		TopicFinal:    cfg.Kafka.TopicFinal,
		TopicAnalysis: cfg.Kafka.TopicAnalysis,
		Principal:     cfg.Kafka.Principal,
	})
	validator := schema.New()
	a.Publisher.SetValidator(validator)
	if len(cfg.NATS.Servers) > 0 {
		mirror, err := events.ConnectNATS(events.NATSConfig{
			Servers:       cfg.NATS.Servers,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Token:         cfg.NATS.Token,
		})
		if err != nil {
			// The mirror is optional; Kafka and the websocket feed still work.
			appLogger.Warn().Err(err).Msg("NATS mirror unavailable")
		} else {
			a.Publisher.SetMirror(mirror)
		}
	}

	st, err := store.Open(ctx, store.Config{
		Path:               cfg.Store.Path,
		RetentionDays:      cfg.Store.RetentionDays,
		MaxPerConsultation: cfg.Store.MaxPerConsultation,
	})
	if err != nil {
		a.Publisher.Close()
		return nil, fmt.Errorf("open analysis store: %w", err)
	}
	a.Store = st

	a.Hub = stream.NewHub(a.Metrics)

	upCfg := upstream.Config{
		Timeout:             cfg.Upstream.Timeout,
		MaxRateLimitRetries: cfg.Upstream.MaxRateLimitRetries,
		MaxRetryDelay:       cfg.Upstream.MaxRetryDelay,
	}
	httpClient := &http.Client{}

	upCfg.Service = "whisper"
	a.Transcriber = transcription.New(transcription.Config{
		BaseURL: cfg.Whisper.BaseURL,
		APIKey:  cfg.Whisper.APIKey,
		Models:  cfg.Whisper.Models,
	}, upstream.New(upCfg, httpClient, a.Metrics))

	upCfg.Service = "gemini"
	a.Analyzer = gemini.New(gemini.Config{
		BaseURL:     cfg.Gemini.BaseURL,
		APIKey:      cfg.Gemini.APIKey,
		Models:      cfg.Gemini.Models,
		Temperature: cfg.Gemini.Temperature,
	}, upstream.New(upCfg, httpClient, a.Metrics), validator)

	a.Consultations = consultation.NewManager(consultation.Config{
		Debounce:        cfg.Analysis.Debounce,
		RestartBackoff:  cfg.Capture.RestartBackoff,
		AnalysisTimeout: cfg.Analysis.Timeout,
		DefaultLanguage: models.ParseLanguage(cfg.Capture.DefaultLanguage),
	}, consultation.Deps{
		Engines:   a.engineFactory(),
		Analyzer:  a.Analyzer,
		Publisher: a.Publisher,
		History:   a.Store,
		Hub:       a.Hub,
		Metrics:   a.Metrics,
	})

	if cfg.Gemini.APIKey == "" {
		appLogger.Warn().Msg("GEMINI_API_KEY not set, clinical analysis will fail")
	}
	if cfg.Whisper.APIKey == "" {
		appLogger.Warn().Msg("OPENAI_API_KEY not set, /v1/transcribe will fail")
	}

	appLogger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Bool("kafka", cfg.Kafka.Enabled).
		Bool("historyEphemeral", a.Store.Ephemeral()).
		Msg("Consult transcript service application created")
	return a, nil
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	lc := logging.DefaultConfig()
	lc.Level = a.Cfg.Observability.LogLevel
	lc.Format = a.Cfg.Observability.LogFormat
	lc.Service = a.Cfg.Service.Principal
	if os.Getenv("ENV") == "dev" {
		lc.Format = "console"
	}
	logging.Init(lc)

	a.Logger = logging.WithComponent("application")
	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// engineFactory builds one recognition engine per consultation.
func (a *Application) engineFactory() consultation.EngineFactory {
	sttCfg := a.Cfg.STT
	return func(ctx context.Context, req consultation.OpenRequest) (stt.Engine, error) {
		switch strings.ToLower(sttCfg.Provider) {
		case "google":
			return google.New(ctx, google.Config{
				LanguageCode:   sttCfg.LanguageCode,
				SampleRateHz:   sttCfg.SampleRateHz,
				InterimResults: sttCfg.InterimResults,
				AudioEncoding:  sttCfg.AudioEncoding,
				Model:          sttCfg.Model,
			})
		case "mock", "":
			return mock.New(), nil
		default:
			return nil, fmt.Errorf("unknown STT provider %q", sttCfg.Provider)
		}
	}
}

// Ready reports whether the service can take traffic.
func (a *Application) Ready(ctx context.Context) error {
	if a.Store == nil {
		return errors.New("analysis store not open")
	}
	return a.Store.Ping(ctx)
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.Hub.Run(ctx)
	go a.pruneLoop(ctx)

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Consult transcript service starting")

	return nil
}

// pruneLoop applies history retention once a day.
func (a *Application) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := a.Store.Prune(ctx); err != nil {
				log.Warn().Err(err).Msg("History prune failed")
			} else if n > 0 {
				log.Info().Int64("deleted", n).Msg("Pruned analysis history")
			}
		}
	}
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("Consult transcript service shutting down")

	a.Consultations.CloseAll()
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.Publisher.Close(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Publisher close failed")
	}
	if err := a.Store.Close(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Store close failed")
	}
}
