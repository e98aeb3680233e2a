// Package consultation owns the live consultations of the service: one
// capture session, utterance tracker and analysis dispatcher per id, wired
// to the event publisher, the analysis history and the websocket feed.
package consultation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"consult-transcript-service/internal/clock"
	"consult-transcript-service/internal/models"
	"consult-transcript-service/internal/observability/logging"
	"consult-transcript-service/internal/observability/metrics"
	"consult-transcript-service/internal/service/analysis"
	"consult-transcript-service/internal/service/capture"
	"consult-transcript-service/internal/service/stt"
	"consult-transcript-service/internal/service/utterance"
	"consult-transcript-service/internal/stream"
)

const notifyTimeout = 10 * time.Second

var (
	// ErrNotFound is returned for an unknown consultation id.
	ErrNotFound = errors.New("consultation not found")
	// ErrMissingID is returned when Open is called without an id.
	ErrMissingID = errors.New("consultation id is required")
)

// EngineFactory creates the recognition engine for a new consultation.
type EngineFactory func(ctx context.Context, req OpenRequest) (stt.Engine, error)

// Publisher publishes transcript and analysis events.
type Publisher interface {
	PublishPartial(ctx context.Context, event *models.TranscriptEvent) error
	PublishFinal(ctx context.Context, event *models.TranscriptEvent) error
	PublishAnalysis(ctx context.Context, event *models.AnalysisEvent) error
}

// History records analysis snapshots.
type History interface {
	Append(ctx context.Context, r *models.ClinicalAnalysisResult) error
}

// Broadcaster pushes envelopes to websocket subscribers.
type Broadcaster interface {
	Broadcast(env stream.Envelope)
}

// OpenRequest describes a consultation to open.
type OpenRequest struct {
	ID       string
	Speaker  models.Speaker
	Language models.Language
}

// Config holds the per-consultation timings.
type Config struct {
	Debounce        time.Duration
	RestartBackoff  time.Duration
	AnalysisTimeout time.Duration
	// DefaultLanguage applies to consultations opened without a language.
	DefaultLanguage models.Language
}

// Deps are the collaborators of a Manager. Publisher, History and Hub are
// optional.
type Deps struct {
	Engines   EngineFactory
	Analyzer  analysis.Analyzer
	Publisher Publisher
	History   History
	Hub       Broadcaster
	AfterFunc clock.AfterFunc
	Metrics   *metrics.Metrics
}

// Manager tracks live consultations by id.
type Manager struct {
	cfg       Config
	deps      Deps
	generator *utterance.Generator
	logger    zerolog.Logger

	mu            sync.Mutex
	consultations map[string]*Consultation
}

// NewManager creates an empty manager.
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.Debounce <= 0 {
		cfg.Debounce = analysis.DefaultDebounce
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = models.LanguageAuto
	}
	if deps.AfterFunc == nil {
		deps.AfterFunc = clock.Real
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultMetrics
	}
	return &Manager{
		cfg:           cfg,
		deps:          deps,
		generator:     utterance.NewGenerator(),
		logger:        log.With().Str("component", "consultation").Logger(),
		consultations: make(map[string]*Consultation),
	}
}

// Open starts listening for a consultation. An already open consultation
// is returned as is; created reports whether a new one was started.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (c *Consultation, created bool, err error) {
	if req.ID == "" {
		return nil, false, ErrMissingID
	}
	if req.Speaker == "" {
		req.Speaker = models.SpeakerPatient
	}
	if req.Language == "" {
		req.Language = m.cfg.DefaultLanguage
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.consultations[req.ID]; ok {
		return existing, false, nil
	}

	if m.deps.Engines == nil {
		return nil, false, capture.ErrUnsupported
	}
	engine, err := m.deps.Engines(ctx, req)
	if err != nil {
		m.logger.Error().Err(err).Str("consultation_id", req.ID).Msg("Failed to create recognition engine")
		return nil, false, fmt.Errorf("create engine: %w", err)
	}

	c = m.newConsultation(req, engine)
	if c.Session, err = capture.New(engine, capture.Options{
		Locale:         req.Language.Locale(),
		Speaker:        req.Speaker,
		RestartBackoff: m.cfg.RestartBackoff,
		AfterFunc:      m.deps.AfterFunc,
		Logger:         &c.logger,
		Metrics:        m.deps.Metrics,
	}); err != nil {
		c.cancel()
		if engine != nil {
			_ = engine.Close()
		}
		return nil, false, err
	}
	c.Session.OnTranscript(c.handleTranscript)
	c.Session.OnError(c.handleCaptureError)

	if err := c.Session.Start(c.ctx, req.Speaker); err != nil {
		c.cancel()
		_ = c.Session.Close()
		return nil, false, fmt.Errorf("start capture: %w", err)
	}

	m.consultations[req.ID] = c
	c.logger.Info().
		Str("speaker", string(req.Speaker)).
		Str("language", string(req.Language)).
		Msg("Consultation opened")
	return c, true, nil
}

func (m *Manager) newConsultation(req OpenRequest, engine stt.Engine) *Consultation {
	ctx, cancel := context.WithCancel(context.Background())
	logger := logging.WithConsultation(req.ID).With().Str("component", "consultation").Logger()
	c := &Consultation{
		ID:        req.ID,
		language:  req.Language,
		OpenedAt:  time.Now(),
		tracker:   utterance.NewTracker(m.generator, req.ID),
		publisher: m.deps.Publisher,
		history:   m.deps.History,
		hub:       m.deps.Hub,
		debounce:  m.cfg.Debounce,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	c.Dispatcher = analysis.NewDispatcher(m.deps.Analyzer, analysis.Options{
		ConsultationID: req.ID,
		Timeout:        m.cfg.AnalysisTimeout,
		AfterFunc:      m.deps.AfterFunc,
		Notifier:       c,
		Logger:         &logger,
		Metrics:        m.deps.Metrics,
	})
	return c
}

// Get returns a live consultation.
func (m *Manager) Get(id string) (*Consultation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.consultations[id]
	return c, ok
}

// IDs returns the ids of all live consultations.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.consultations))
	for id := range m.consultations {
		ids = append(ids, id)
	}
	return ids
}

// Close stops capture, discards pending analysis and forgets the
// consultation.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	c, ok := m.consultations[id]
	if ok {
		delete(m.consultations, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	c.shutdown()
	m.generator.Forget(id)
	c.logger.Info().Dur("duration", time.Since(c.OpenedAt)).Msg("Consultation closed")
	return nil
}

// CloseAll closes every live consultation.
func (m *Manager) CloseAll() {
	for _, id := range m.IDs() {
		_ = m.Close(id)
	}
}

// Consultation is one live consultation.
type Consultation struct {
	ID         string
	OpenedAt   time.Time
	Session    *capture.Session
	Dispatcher *analysis.Dispatcher

	tracker   *utterance.Tracker
	publisher Publisher
	history   History
	hub       Broadcaster
	debounce  time.Duration
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc

	mu       sync.Mutex
	finals   int
	language models.Language
}

// SendAudio feeds one audio frame to the capture session.
func (c *Consultation) SendAudio(ctx context.Context, audio []byte) error {
	return c.Session.SendAudio(ctx, audio)
}

// StopCapture stops listening but keeps pending analysis alive.
func (c *Consultation) StopCapture() {
	c.Session.Stop()
	c.tracker.Drop()
}

// ResumeCapture starts listening again after StopCapture or a terminal
// capture error. A running session keeps listening and only takes the new
// speaker. An empty speaker or language keeps the current one.
func (c *Consultation) ResumeCapture(speaker models.Speaker, lang models.Language) error {
	if lang != "" && lang != c.Language() {
		if err := c.SetLanguage(lang); err != nil {
			return err
		}
	}
	if c.Session.Running() {
		if speaker != "" {
			c.SwitchSpeaker(speaker)
		}
		return nil
	}
	return c.Session.Start(c.ctx, speaker)
}

// SwitchSpeaker tags subsequent results with speaker without interrupting
// capture.
func (c *Consultation) SwitchSpeaker(speaker models.Speaker) {
	c.Session.SwitchSpeaker(speaker)
	c.logger.Info().Str("speaker", string(speaker)).Msg("Speaker switched")
}

// ClearTranscript empties the accumulated transcript and drops the
// utterance in progress. Capture and the held analysis are kept.
func (c *Consultation) ClearTranscript() {
	c.Session.ClearTranscript()
	c.tracker.Drop()
	c.logger.Info().Msg("Transcript cleared")
}

// SetLanguage changes the consultation language. A listening session is
// restarted so the new recognition locale applies at once.
func (c *Consultation) SetLanguage(lang models.Language) error {
	c.mu.Lock()
	c.language = lang
	c.mu.Unlock()

	c.Session.SetLanguage(lang.Locale())
	c.logger.Info().Str("language", string(lang)).Msg("Language changed")
	if !c.Session.Running() {
		return nil
	}
	return c.Session.Start(c.ctx, "")
}

// Language returns the consultation language.
func (c *Consultation) Language() models.Language {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// Transcript returns the accumulated finalized transcript.
func (c *Consultation) Transcript() string {
	return c.Session.Transcript()
}

// Result returns the latest successful analysis, or nil.
func (c *Consultation) Result() *models.ClinicalAnalysisResult {
	return c.Dispatcher.Result()
}

// Utterances returns how many final results the consultation produced.
func (c *Consultation) Utterances() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finals
}

func (c *Consultation) shutdown() {
	if err := c.Session.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to release recognition engine")
	}
	c.Dispatcher.Reset()
	c.tracker.Close()
	c.cancel()
}

func (c *Consultation) handleTranscript(r models.TranscriptResult) {
	var (
		id  string
		err error
	)
	if r.IsFinal {
		id, err = c.tracker.Final()
	} else {
		id, err = c.tracker.Partial()
	}
	if err != nil {
		return
	}

	ev := &models.TranscriptEvent{
		ConsultationID: c.ID,
		UtteranceID:    id,
		Timestamp:      r.Timestamp,
		Speaker:        r.Speaker,
		Language:       r.Language,
		Text:           r.Text,
		Confidence:     r.Confidence,
	}

	if !r.IsFinal {
		ev.EventType = models.EventTranscriptPartial
		c.publish(func(ctx context.Context) error { return c.publisher.PublishPartial(ctx, ev) })
		c.broadcast(stream.TypeTranscriptPartial, ev)
		return
	}

	c.mu.Lock()
	c.finals++
	c.mu.Unlock()

	ev.EventType = models.EventTranscriptFinal
	c.publish(func(ctx context.Context) error { return c.publisher.PublishFinal(ctx, ev) })
	c.broadcast(stream.TypeTranscriptFinal, ev)
	c.Dispatcher.AnalyzeTranscript(c.Session.Transcript(), c.Language(), c.debounce)
}

func (c *Consultation) handleCaptureError(err error) {
	c.tracker.Drop()
	c.logger.Error().Err(err).Str("code", string(stt.CodeOf(err))).Msg("Capture stopped")
	c.broadcast(stream.TypeCaptureError, map[string]string{
		"error": err.Error(),
		"code":  string(stt.CodeOf(err)),
	})
}

// AnalysisSucceeded implements analysis.Notifier.
// The dispatcher has already stamped the consultation id; result is shared
// and must not be modified.
func (c *Consultation) AnalysisSucceeded(result *models.ClinicalAnalysisResult) {
	c.publish(func(ctx context.Context) error {
		return c.publisher.PublishAnalysis(ctx, &models.AnalysisEvent{
			EventType:      models.EventAnalysisCompleted,
			ConsultationID: c.ID,
			Timestamp:      time.Now().UnixMilli(),
			Result:         result,
		})
	})
	if c.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		if err := c.history.Append(ctx, result); err != nil {
			c.logger.Warn().Err(err).Str("analysis_id", result.ID).Msg("Failed to store analysis")
		}
		cancel()
	}
	c.broadcast(stream.TypeAnalysisCompleted, result)
}

// AnalysisFailed implements analysis.Notifier.
func (c *Consultation) AnalysisFailed(err error) {
	c.publish(func(ctx context.Context) error {
		return c.publisher.PublishAnalysis(ctx, &models.AnalysisEvent{
			EventType:      models.EventAnalysisFailed,
			ConsultationID: c.ID,
			Timestamp:      time.Now().UnixMilli(),
			Error:          err.Error(),
		})
	})
	c.broadcast(stream.TypeAnalysisFailed, map[string]string{"error": err.Error()})
}

func (c *Consultation) publish(fn func(ctx context.Context) error) {
	if c.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to publish event")
	}
}

func (c *Consultation) broadcast(kind string, data any) {
	if c.hub == nil {
		return
	}
	c.hub.Broadcast(stream.Envelope{Type: kind, ConsultationID: c.ID, Data: data})
}
