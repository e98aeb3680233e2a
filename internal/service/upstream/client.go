// Package upstream sends requests to hosted model APIs, falling back across
// an ordered list of models and honoring rate-limit delays.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"consult-transcript-service/internal/observability/metrics"
)

const (
	DefaultMaxRateLimitRetries = 5
	DefaultRetryDelay          = time.Second
	DefaultMaxRetryDelay       = 30 * time.Second
	DefaultTimeout             = 60 * time.Second

	maxBodyBytes    = 8 << 20
	maxDetailsBytes = 2048
)

// Error is a failed upstream exchange, carrying the status to surface to
// callers.
type Error struct {
	Status  int
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("upstream %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %d: %s: %s", e.Status, e.Message, e.Details)
}

// StatusOf returns the status carried by err, or 500 if err is not an *Error.
func StatusOf(err error) int {
	if e, ok := AsError(err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}

// BuildFunc creates the request for one model. It is called once per attempt
// so request bodies are never reused.
type BuildFunc func(ctx context.Context, model string) (*http.Request, error)

// Response is a successful upstream reply.
type Response struct {
	Model  string
	Status int
	Header http.Header
	Body   []byte
}

// Config configures a Client.
type Config struct {
	// Service labels metrics and logs, e.g. "whisper" or "gemini".
	Service             string
	Timeout             time.Duration
	MaxRateLimitRetries int
	DefaultRetryDelay   time.Duration
	MaxRetryDelay       time.Duration
}

// Client performs model fallback over HTTP.
type Client struct {
	cfg     Config
	http    *http.Client
	sleep   func(ctx context.Context, d time.Duration) error
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a Client. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, m *metrics.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRateLimitRetries <= 0 {
		cfg.MaxRateLimitRetries = DefaultMaxRateLimitRetries
	}
	if cfg.DefaultRetryDelay <= 0 {
		cfg.DefaultRetryDelay = DefaultRetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		sleep:   sleepContext,
		logger:  log.With().Str("component", "upstream").Str("service", cfg.Service).Logger(),
		metrics: m,
	}
}

// SetSleep replaces the wait used between rate-limited attempts.
func (c *Client) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	c.sleep = fn
}

// Do tries models in order. A 404 moves on to the next model, a 429 waits
// and retries the same model. Any other non-2xx reply ends the call.
func (c *Client) Do(ctx context.Context, models []string, build BuildFunc) (*Response, error) {
	if len(models) == 0 {
		return nil, &Error{Status: http.StatusInternalServerError, Message: "no models configured"}
	}

	rateLimited := 0
	for i := 0; i < len(models); {
		model := models[i]

		req, err := build(ctx, model)
		if err != nil {
			return nil, fmt.Errorf("build request for %s: %w", model, err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.metrics.RecordUpstream(c.cfg.Service, model, 0)
			return nil, &Error{
				Status:  http.StatusBadGateway,
				Message: "upstream request failed",
				Details: err.Error(),
			}
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if err != nil {
			return nil, &Error{
				Status:  http.StatusBadGateway,
				Message: "read upstream response",
				Details: err.Error(),
			}
		}
		c.metrics.RecordUpstream(c.cfg.Service, model, resp.StatusCode)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return &Response{Model: model, Status: resp.StatusCode, Header: resp.Header, Body: body}, nil

		case resp.StatusCode == http.StatusNotFound:
			c.logger.Warn().
				Str("model", model).
				Msg("Model not found, trying next")
			c.metrics.RecordFallback(c.cfg.Service)
			i++

		case resp.StatusCode == http.StatusTooManyRequests:
			if rateLimited >= c.cfg.MaxRateLimitRetries {
				return nil, &Error{
					Status:  http.StatusTooManyRequests,
					Message: errorMessage(body, resp.StatusCode),
					Details: truncate(body),
				}
			}
			rateLimited++
			delay := c.retryDelay(resp.Header, body)
			c.metrics.RecordRateLimited(c.cfg.Service)
			c.logger.Warn().
				Str("model", model).
				Dur("delay", delay).
				Int("attempt", rateLimited).
				Msg("Rate limited, retrying")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}

		default:
			return nil, &Error{
				Status:  resp.StatusCode,
				Message: errorMessage(body, resp.StatusCode),
				Details: truncate(body),
			}
		}
	}

	return nil, &Error{
		Status:  http.StatusNotFound,
		Message: "no available model",
		Details: "tried " + strings.Join(models, ", "),
	}
}

// retryDelay reads the server-requested wait from the Retry-After header or
// a google.rpc.RetryInfo detail in the body.
func (c *Client) retryDelay(h http.Header, body []byte) time.Duration {
	d, ok := parseRetryAfter(h.Get("Retry-After"), time.Now())
	if !ok {
		d, ok = parseRetryInfo(body)
	}
	if !ok || d <= 0 {
		d = c.cfg.DefaultRetryDelay
	}
	if d > c.cfg.MaxRetryDelay {
		d = c.cfg.MaxRetryDelay
	}
	return d
}

func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), true
	}
	if t, err := http.ParseTime(v); err == nil {
		return t.Sub(now), true
	}
	return 0, false
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Details []struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		} `json:"details"`
	} `json:"error"`
}

func parseRetryInfo(body []byte) (time.Duration, bool) {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, false
	}
	for _, d := range env.Error.Details {
		if d.RetryDelay == "" {
			continue
		}
		if dur, err := time.ParseDuration(d.RetryDelay); err == nil {
			return dur, true
		}
	}
	return 0, false
}

// errorMessage extracts {"error":{"message":...}} from OpenAI and Google
// style bodies, falling back to the status text.
func errorMessage(body []byte, status int) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return http.StatusText(status)
}

// truncate caps body at maxDetailsBytes without splitting a rune.
func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= maxDetailsBytes {
		return s
	}
	cut := maxDetailsBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
