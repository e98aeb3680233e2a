// Package gemini implements clinical analysis on the Gemini
// generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"consult-transcript-service/internal/models"
	"consult-transcript-service/internal/schema"
	"consult-transcript-service/internal/service/symptoms"
	"consult-transcript-service/internal/service/upstream"
)

const (
	DefaultBaseURL     = "https://generativelanguage.googleapis.com"
	DefaultTemperature = 0.2
)

// DefaultModels is the fallback order used when none is configured.
var DefaultModels = []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"}

// Config configures the client.
type Config struct {
	BaseURL     string
	APIKey      string
	Models      []string
	Temperature float64
}

// Client performs clinical analysis calls.
type Client struct {
	cfg       Config
	up        *upstream.Client
	validator *schema.Validator
	symptoms  symptoms.Table
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates a Client. A nil validator gets schema.New().
func New(cfg Config, up *upstream.Client, validator *schema.Validator) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if validator == nil {
		validator = schema.New()
	}
	return &Client{
		cfg:       cfg,
		up:        up,
		validator: validator,
		symptoms:  symptoms.Default,
		now:       time.Now,
		logger:    log.With().Str("component", "gemini").Logger(),
	}
}

// Analyze extracts symptoms, a diagnosis and a prescription from a
// consultation transcript.
func (c *Client) Analyze(ctx context.Context, transcript string, lang models.Language) (*models.ClinicalAnalysisResult, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, upstream.BadRequest("transcript is required")
	}

	text, model, err := c.generate(ctx, analysisSystemPrompt, analysisPrompt(transcript, lang))
	if err != nil {
		return nil, err
	}

	var wire wireAnalysis
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &wire); err != nil {
		return nil, upstream.BadGateway("invalid analysis response", err.Error())
	}

	result := &models.ClinicalAnalysisResult{
		ID:         uuid.NewString(),
		Transcript: transcript,
		Symptoms: models.Symptoms{
			Original:   trimAll(wire.SymptomsOriginal),
			Normalized: c.symptoms.NormalizeSymptoms(wire.SymptomsOriginal, wire.SymptomsEnglish),
		},
		Diagnosis: models.Diagnosis{
			Primary:    strings.TrimSpace(wire.Diagnosis.Primary),
			Confidence: clampConfidence(float64(wire.Diagnosis.Confidence)),
			Reasoning:  strings.TrimSpace(wire.Diagnosis.Reasoning),
			ICD10:      strings.TrimSpace(wire.Diagnosis.ICD10),
		},
		Prescription:     toMedicine(wire.Prescription),
		Advice:           strings.TrimSpace(wire.Advice),
		DetectedLanguage: models.ParseLanguage(wire.DetectedLanguage),
		Model:            model,
		CreatedAt:        c.now().UTC(),
	}
	if result.DetectedLanguage == models.LanguageAuto {
		result.DetectedLanguage = lang
	}
	for _, alt := range wire.Diagnosis.Alternatives {
		label := strings.TrimSpace(alt.Label)
		if label == "" {
			continue
		}
		result.Diagnosis.Alternatives = append(result.Diagnosis.Alternatives, models.AlternativeDiagnosis{
			Label:      label,
			Confidence: clampConfidence(float64(alt.Confidence)),
		})
	}
	if wire.FollowUpDays != nil && *wire.FollowUpDays > 0 {
		days := int(*wire.FollowUpDays)
		result.FollowUpDays = &days
	}

	if err := c.validator.Validate(result); err != nil {
		return nil, upstream.BadGateway("analysis failed validation", err.Error())
	}

	c.logger.Debug().
		Str("model", model).
		Str("diagnosis", result.Diagnosis.Primary).
		Strs("symptoms", result.Symptoms.Normalized).
		Msg("Analysis decoded")
	return result, nil
}

// MedicineStructure proposes a structured regimen for one medicine.
func (c *Client) MedicineStructure(ctx context.Context, name, diagnosis string, age *int) (*models.MedicineStructure, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, upstream.BadRequest("medicine name is required")
	}

	text, _, err := c.generate(ctx, medicineSystemPrompt, medicinePrompt(name, strings.TrimSpace(diagnosis), age))
	if err != nil {
		return nil, err
	}

	var wire wireMedicine
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &wire); err != nil {
		return nil, upstream.BadGateway("invalid medicine response", err.Error())
	}
	ms := toMedicine(wire)
	if err := c.validator.Validate(&ms); err != nil {
		return nil, upstream.BadGateway("medicine structure failed validation", err.Error())
	}
	return &ms, nil
}

// generate runs one generateContent call with model fallback and returns the
// candidate text and the model that answered.
func (c *Client) generate(ctx context.Context, system, prompt string) (string, string, error) {
	if c.cfg.APIKey == "" {
		return "", "", &upstream.Error{Status: http.StatusInternalServerError, Message: "analysis is not configured"}
	}

	payload, err := json.Marshal(generateRequest{
		Contents:          []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		SystemInstruction: &content{Parts: []part{{Text: system}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			Temperature:      c.cfg.Temperature,
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal request: %w", err)
	}

	build := func(ctx context.Context, model string) (*http.Request, error) {
		endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
			c.cfg.BaseURL, url.PathEscape(model), url.QueryEscape(c.cfg.APIKey))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := c.up.Do(ctx, c.cfg.Models, build)
	if err != nil {
		return "", "", err
	}

	var gr generateResponse
	if err := json.Unmarshal(resp.Body, &gr); err != nil {
		return "", "", upstream.BadGateway("invalid model response", err.Error())
	}
	text := strings.TrimSpace(gr.text())
	if text == "" {
		reason := gr.PromptFeedback.BlockReason
		if reason == "" && len(gr.Candidates) > 0 {
			reason = gr.Candidates[0].FinishReason
		}
		return "", "", upstream.BadGateway("empty model response", reason)
	}
	return text, resp.Model, nil
}

func toMedicine(w wireMedicine) models.MedicineStructure {
	ms := models.MedicineStructure{
		Dosage:       strings.TrimSpace(w.Dosage),
		Frequency:    strings.TrimSpace(w.Frequency),
		Timing:       models.NormalizePeriods(w.Timing),
		FoodTiming:   models.ParseFoodTiming(w.FoodTiming),
		Instructions: strings.TrimSpace(w.Instructions),
	}
	if w.DurationDays > 0 {
		ms.DurationDays = int(w.DurationDays)
	}
	return ms
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
