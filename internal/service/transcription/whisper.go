// Package transcription proxies recorded consultation audio to a hosted
// Whisper-compatible API.
package transcription

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"consult-transcript-service/internal/models"
	"consult-transcript-service/internal/service/upstream"
)

const DefaultBaseURL = "https://api.openai.com"

// DefaultModels is the fallback order used when none is configured.
var DefaultModels = []string{"whisper-1", "gpt-4o-transcribe", "gpt-4o-mini-transcribe"}

// Config configures the proxy.
type Config struct {
	BaseURL string
	APIKey  string
	Models  []string
}

// Request is one recording to transcribe.
type Request struct {
	// Audio is base64, optionally with a data URL prefix.
	Audio       string `json:"audio"`
	ContentType string `json:"mimeType"`
	Language    string `json:"language"`
}

// Result is the recognized text.
type Result struct {
	Text             string          `json:"text"`
	DetectedLanguage models.Language `json:"detectedLanguage"`
	Model            string          `json:"model"`
	DurationSeconds  float64         `json:"durationSeconds,omitempty"`
}

// Service forwards recordings upstream.
type Service struct {
	cfg    Config
	client *upstream.Client
	logger zerolog.Logger
}

// New creates a Service using client for model fallback.
func New(cfg Config, client *upstream.Client) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels
	}
	return &Service{
		cfg:    cfg,
		client: client,
		logger: log.With().Str("component", "transcription").Logger(),
	}
}

type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// Transcribe decodes the recording and sends it upstream as multipart form
// data, trying each configured model in turn.
func (s *Service) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if s.cfg.APIKey == "" {
		return nil, &upstream.Error{Status: http.StatusInternalServerError, Message: "transcription is not configured"}
	}
	audio, err := DecodeAudio(req.Audio)
	if err != nil {
		return nil, upstream.BadRequest(err.Error())
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "audio/webm"
	}
	lang := models.ParseLanguage(req.Language)
	filename := "recording." + extensionFor(contentType)

	build := func(ctx context.Context, model string) (*http.Request, error) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)

		part, err := w.CreatePart(filePartHeader(filename, contentType))
		if err != nil {
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(audio); err != nil {
			return nil, fmt.Errorf("write audio: %w", err)
		}
		_ = w.WriteField("model", model)
		_ = w.WriteField("response_format", "verbose_json")
		if lang != models.LanguageAuto {
			_ = w.WriteField("language", string(lang))
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("close multipart: %w", err)
		}

		r, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v1/audio/transcriptions", &body)
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", w.FormDataContentType())
		r.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
		return r, nil
	}

	resp, err := s.client.Do(ctx, s.cfg.Models, build)
	if err != nil {
		return nil, err
	}

	var out verboseResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, upstream.BadGateway("invalid transcription response", err.Error())
	}

	detected := languageFromName(out.Language)
	if detected == models.LanguageAuto {
		detected = lang
	}

	s.logger.Info().
		Str("model", resp.Model).
		Int("audio_bytes", len(audio)).
		Str("language", string(detected)).
		Msg("Transcription completed")

	return &Result{
		Text:             strings.TrimSpace(out.Text),
		DetectedLanguage: detected,
		Model:            resp.Model,
		DurationSeconds:  out.Duration,
	}, nil
}

// DecodeAudio decodes base64 audio, tolerating a data URL prefix and
// unpadded input.
func DecodeAudio(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		s = s[i+1:]
	}
	if s == "" {
		return nil, fmt.Errorf("audio is required")
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("audio is not valid base64")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("audio is empty")
	}
	return data, nil
}

func filePartHeader(filename, contentType string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	return h
}

func extensionFor(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch ct {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/ogg":
		return "ogg"
	case "audio/flac":
		return "flac"
	}
	return "webm"
}

func languageFromName(name string) models.Language {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "english":
		return models.LanguageEnglish
	case "hindi":
		return models.LanguageHindi
	case "telugu":
		return models.LanguageTelugu
	case "tamil":
		return models.LanguageTamil
	case "kannada":
		return models.LanguageKannada
	case "marathi":
		return models.LanguageMarathi
	case "bengali", "bangla":
		return models.LanguageBengali
	}
	return models.ParseLanguage(name)
}
