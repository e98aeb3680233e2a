// Package capture drives a continuous, auto-recovering recognition stream
// and turns engine events into incremental transcript results.
//
// State transitions:
//
//	IDLE ──Start()──→ LISTENING ──recoverable error / end of stream──→ RESTART_PENDING
//	  ↑                  │                                                  │
//	  └──Stop() / terminal error / failed restart ←──────── backoff ────────┘
//
// Rules:
//   - Final chunks are appended to the accumulated buffer, which only
//     shrinks on ClearTranscript.
//   - Interim chunks are emitted as buffer+interim and never persisted.
//   - A recoverable fault schedules exactly one restart; later events from
//     the failed stream are ignored.
package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"consult-transcript-service/internal/clock"
	"consult-transcript-service/internal/models"
	"consult-transcript-service/internal/observability/metrics"
	"consult-transcript-service/internal/service/stt"
)

const (
	// FinalConfidence is attached to finalized results. Upstream per-word
	// confidence is unreliable so a constant is used.
	FinalConfidence = 0.95
	// InterimConfidence is attached to interim results.
	InterimConfidence = 0.7
	// DefaultRestartBackoff is the delay before an automatic restart.
	DefaultRestartBackoff = time.Second
)

var (
	// ErrUnsupported is returned when no recognition engine is available.
	ErrUnsupported = errors.New("speech recognition is not supported")
	// ErrNotListening is returned by SendAudio on an idle session.
	ErrNotListening = errors.New("capture session is not listening")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("capture session is closed")
)

// TranscriptFunc receives incremental transcript results.
type TranscriptFunc func(models.TranscriptResult)

// ErrorFunc receives terminal capture faults.
type ErrorFunc func(error)

// Options configures a Session.
type Options struct {
	Locale         string
	Speaker        models.Speaker
	RestartBackoff time.Duration
	AfterFunc      clock.AfterFunc
	Logger         *zerolog.Logger
	Metrics        *metrics.Metrics
}

// Session is one consultation's listening session. It owns the engine
// exclusively.
type Session struct {
	engine    stt.Engine
	backoff   time.Duration
	afterFunc clock.AfterFunc
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	mu           sync.Mutex
	ctx          context.Context
	state        State
	running      bool
	speaker      models.Speaker
	locale       string
	accumulated  string
	interim      string
	restartTimer clock.Timer
	closed       bool
	// epoch identifies the current engine stream. Callbacks carrying an
	// older epoch belong to a stopped or failed stream and are ignored.
	epoch uint64

	onTranscript TranscriptFunc
	onError      ErrorFunc
}

// New creates an idle session. It fails with ErrUnsupported if engine is nil.
func New(engine stt.Engine, opts Options) (*Session, error) {
	if engine == nil {
		return nil, ErrUnsupported
	}
	if opts.RestartBackoff <= 0 {
		opts.RestartBackoff = DefaultRestartBackoff
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = clock.Real
	}
	if opts.Speaker == "" {
		opts.Speaker = models.SpeakerPatient
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	logger := log.With().Str("component", "capture").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Session{
		engine:    engine,
		backoff:   opts.RestartBackoff,
		afterFunc: opts.AfterFunc,
		logger:    logger,
		metrics:   opts.Metrics,
		speaker:   opts.Speaker,
		locale:    opts.Locale,
		ctx:       context.Background(),
	}, nil
}

// OnTranscript registers the transcript observer. Last registration wins.
func (s *Session) OnTranscript(fn TranscriptFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTranscript = fn
}

// OnError registers the error observer. Last registration wins.
func (s *Session) OnError(fn ErrorFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Start begins listening as speaker. A running session is stopped and
// restarted. ctx bounds every engine stream of this run, including
// automatic restarts.
func (s *Session) Start(ctx context.Context, speaker models.Speaker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running {
		s.logger.Debug().Msg("start while running, restarting")
		s.stopLocked()
	}
	if speaker != "" {
		s.speaker = speaker
	}
	s.ctx = ctx
	s.running = true

	if err := s.startEngineLocked(); err != nil {
		s.running = false
		s.state = StateIdle
		return err
	}
	s.metrics.RecordSessionStart()
	s.logger.Info().
		Str("speaker", string(s.speaker)).
		Str("locale", s.locale).
		Msg("capture started")
	return nil
}

// Stop cancels any pending restart and releases the engine. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopLocked() {
		s.logger.Info().Msg("capture stopped")
	}
}

// Close stops the session and releases the engine. The session cannot be
// started again. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.engine.Close()
}

// SwitchSpeaker changes the tag on subsequently emitted results.
func (s *Session) SwitchSpeaker(speaker models.Speaker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaker = speaker
}

// SetLanguage sets the recognition locale used by the next start.
func (s *Session) SetLanguage(locale string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locale = locale
}

// ClearTranscript empties the accumulated buffer without stopping capture.
func (s *Session) ClearTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accumulated = ""
	s.interim = ""
}

// Transcript returns the accumulated finalized text.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accumulated
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether the session intends to keep listening.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Speaker returns the current speaker tag.
func (s *Session) Speaker() models.Speaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaker
}

// Locale returns the configured recognition locale.
func (s *Session) Locale() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locale
}

// SendAudio forwards audio to the engine. Audio arriving while a restart
// is pending is dropped.
func (s *Session) SendAudio(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateIdle:
		return ErrNotListening
	case StateRestartPending:
		return nil
	}
	s.metrics.RecordAudioReceived(len(audio))
	return s.engine.SendAudio(ctx, audio)
}

// startEngineLocked opens a new engine stream. If the engine reports it is
// still active it is stopped and started once more.
func (s *Session) startEngineLocked() error {
	s.epoch++
	err := s.engine.Start(s.ctx, s.locale, &engineCallback{s: s, epoch: s.epoch})
	if errors.Is(err, stt.ErrAlreadyStarted) {
		s.logger.Debug().Msg("engine already active, stopping and retrying once")
		_ = s.engine.Stop()
		s.epoch++
		err = s.engine.Start(s.ctx, s.locale, &engineCallback{s: s, epoch: s.epoch})
	}
	if err != nil {
		return err
	}
	s.state = StateListening
	return nil
}

// stopLocked returns the session to idle and reports whether it was active.
func (s *Session) stopLocked() bool {
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
	wasActive := s.state.Active()
	wasRunning := s.running
	s.running = false
	s.state = StateIdle
	s.interim = ""
	s.epoch++
	if wasActive {
		if err := s.engine.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("engine stop failed")
		}
	}
	if wasRunning {
		s.metrics.RecordSessionStop()
	}
	return wasActive
}

// scheduleRestartLocked arms exactly one restart after the backoff.
func (s *Session) scheduleRestartLocked(reason string) {
	if s.restartTimer != nil {
		s.restartTimer.Stop()
	}
	s.state = StateRestartPending
	s.interim = ""
	s.epoch++
	epoch := s.epoch
	s.restartTimer = s.afterFunc(s.backoff, func() { s.restart(epoch, reason) })
	s.logger.Debug().
		Str("reason", reason).
		Dur("backoff", s.backoff).
		Msg("restart scheduled")
}

func (s *Session) restart(epoch uint64, reason string) {
	s.mu.Lock()
	if !s.running || s.state != StateRestartPending || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.restartTimer = nil

	err := s.startEngineLocked()
	if err == nil {
		s.mu.Unlock()
		s.metrics.RecordRestart(reason)
		s.logger.Debug().Str("reason", reason).Msg("capture restarted")
		return
	}

	s.running = false
	s.state = StateIdle
	s.metrics.RecordSessionStop()
	fn := s.onError
	s.mu.Unlock()

	s.logger.Error().Err(err).Msg("capture restart failed")
	if fn != nil {
		fn(err)
	}
}

func (s *Session) handleResults(epoch uint64, ev stt.Event) {
	var final, interim strings.Builder
	for _, r := range ev.Results {
		text := strings.TrimSpace(r.Transcript)
		if text == "" {
			continue
		}
		if r.IsFinal {
			final.WriteString(text)
			final.WriteString(" ")
		} else {
			interim.WriteString(r.Transcript)
		}
	}

	s.mu.Lock()
	if epoch != s.epoch || s.state != StateListening {
		s.mu.Unlock()
		return
	}
	now := time.Now().UnixMilli()
	var out []models.TranscriptResult
	if final.Len() > 0 {
		s.accumulated += final.String()
		s.interim = ""
		out = append(out, models.TranscriptResult{
			Text:       s.accumulated,
			IsFinal:    true,
			Confidence: FinalConfidence,
			Speaker:    s.speaker,
			Language:   s.locale,
			Timestamp:  now,
		})
	}
	if interim.Len() > 0 {
		s.interim = interim.String()
		out = append(out, models.TranscriptResult{
			Text:       s.accumulated + s.interim,
			IsFinal:    false,
			Confidence: InterimConfidence,
			Speaker:    s.speaker,
			Language:   s.locale,
			Timestamp:  now,
		})
	}
	fn := s.onTranscript
	s.mu.Unlock()

	for _, r := range out {
		if r.IsFinal {
			s.metrics.RecordFinalTranscript()
		} else {
			s.metrics.RecordPartialTranscript()
		}
		if fn != nil {
			fn(r)
		}
	}
}

func (s *Session) handleError(epoch uint64, err error) {
	code := stt.CodeOf(err)

	s.mu.Lock()
	if epoch != s.epoch || !s.state.Active() {
		s.mu.Unlock()
		return
	}
	recoverable := code.Recoverable()
	s.metrics.RecordCaptureError(string(code), recoverable)

	if recoverable && s.running {
		s.scheduleRestartLocked(string(code))
		s.mu.Unlock()
		s.logger.Warn().Err(err).Str("code", string(code)).Msg("recoverable capture error")
		return
	}

	s.stopLocked()
	fn := s.onError
	s.mu.Unlock()

	s.logger.Error().Err(err).Str("code", string(code)).Msg("terminal capture error")
	if fn != nil {
		fn(err)
	}
}

func (s *Session) handleEnd(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.state != StateListening {
		return
	}
	if s.running {
		s.scheduleRestartLocked("end")
		return
	}
	s.state = StateIdle
}

// engineCallback binds engine output to the stream epoch it was started for.
type engineCallback struct {
	s     *Session
	epoch uint64
}

func (c *engineCallback) OnResults(ev stt.Event) { c.s.handleResults(c.epoch, ev) }
func (c *engineCallback) OnError(err error)      { c.s.handleError(c.epoch, err) }
func (c *engineCallback) OnEnd()                 { c.s.handleEnd(c.epoch) }
