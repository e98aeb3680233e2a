// Package analysis debounces transcript updates into remote clinical
// analysis calls and holds the latest successful result.
package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"consult-transcript-service/internal/clock"
	"consult-transcript-service/internal/models"
	"consult-transcript-service/internal/observability/logging"
	"consult-transcript-service/internal/observability/metrics"
)

const (
	// MinTranscriptLength is the shortest trimmed transcript, in runes,
	// worth analyzing.
	MinTranscriptLength = 10
	DefaultDebounce     = 2 * time.Second
	DefaultTimeout      = 60 * time.Second
)

var errEmptyResult = errors.New("analyzer returned no result")

// Analyzer performs the remote clinical calls.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string, lang models.Language) (*models.ClinicalAnalysisResult, error)
	MedicineStructure(ctx context.Context, name, diagnosis string, age *int) (*models.MedicineStructure, error)
}

// Notifier is told about every settled analysis that was not discarded.
type Notifier interface {
	AnalysisSucceeded(result *models.ClinicalAnalysisResult)
	AnalysisFailed(err error)
}

type nopNotifier struct{}

func (nopNotifier) AnalysisSucceeded(*models.ClinicalAnalysisResult) {}
func (nopNotifier) AnalysisFailed(error)                              {}

// Options configures a Dispatcher.
type Options struct {
	// ConsultationID is stamped on every result that does not carry one.
	ConsultationID string
	Timeout        time.Duration
	AfterFunc      clock.AfterFunc
	Notifier       Notifier
	Logger         *zerolog.Logger
	Metrics        *metrics.Metrics
}

// Dispatcher runs at most one analysis at a time for a consultation.
type Dispatcher struct {
	consultationID string
	analyzer       Analyzer
	timeout        time.Duration
	afterFunc      clock.AfterFunc
	notifier       Notifier
	logger         zerolog.Logger
	metrics        *metrics.Metrics

	mu          sync.Mutex
	timer       clock.Timer
	pendingText string
	pendingLang models.Language
	// seq identifies the armed debounce timer.
	seq uint64
	// generation changes on Reset; responses from an older generation are
	// discarded.
	generation uint64
	inFlight   bool
	cancel     context.CancelFunc
	result     *models.ClinicalAnalysisResult
}

// NewDispatcher creates an idle dispatcher.
func NewDispatcher(analyzer Analyzer, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = clock.Real
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	// A caller-supplied logger already carries its consultation context.
	var logger zerolog.Logger
	switch {
	case opts.Logger != nil:
		logger = *opts.Logger
	case opts.ConsultationID != "":
		logger = logging.WithConsultation(opts.ConsultationID).With().Str("component", "analysis").Logger()
	default:
		logger = log.With().Str("component", "analysis").Logger()
	}

	return &Dispatcher{
		consultationID: opts.ConsultationID,
		analyzer:       analyzer,
		timeout:        opts.Timeout,
		afterFunc:      opts.AfterFunc,
		notifier:       opts.Notifier,
		logger:         logger,
		metrics:        opts.Metrics,
	}
}

// AnalyzeTranscript schedules an analysis of text after debounce (default
// 2s). A later call within the window replaces the pending one. Text shorter
// than MinTranscriptLength is ignored.
func (d *Dispatcher) AnalyzeTranscript(text string, lang models.Language, debounce time.Duration) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinTranscriptLength {
		return
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil && d.timer.Stop() {
		d.metrics.RecordAnalysisSuperseded()
	}
	d.seq++
	seq := d.seq
	d.pendingText = text
	d.pendingLang = lang
	d.timer = d.afterFunc(debounce, func() { d.fire(seq) })
}

// fire runs on the debounce timer and performs the call synchronously.
func (d *Dispatcher) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	if d.inFlight {
		d.mu.Unlock()
		d.logger.Debug().Msg("Analysis in flight, dropping request")
		d.metrics.RecordAnalysis("dropped", 0)
		return
	}

	text, lang := d.pendingText, d.pendingLang
	d.pendingText = ""
	gen := d.generation
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	d.inFlight = true
	d.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	start := time.Now()
	result, err := d.analyzer.Analyze(ctx, text, lang)
	if err == nil && result == nil {
		err = errEmptyResult
	}
	latency := time.Since(start).Seconds()

	d.mu.Lock()
	if gen != d.generation {
		d.mu.Unlock()
		d.logger.Debug().Msg("Discarding analysis response after reset")
		d.metrics.RecordAnalysis("discarded", latency)
		return
	}
	d.inFlight = false
	d.cancel = nil
	if err != nil {
		d.mu.Unlock()
		d.logger.Error().Err(err).Float64("latency_seconds", latency).Msg("Clinical analysis failed")
		d.metrics.RecordAnalysis("failure", latency)
		d.notifier.AnalysisFailed(err)
		return
	}
	if result.ConsultationID == "" && d.consultationID != "" {
		// Stamp a copy so the result is never written after it is shared.
		stamped := *result
		stamped.ConsultationID = d.consultationID
		result = &stamped
	}
	d.result = result
	d.mu.Unlock()

	d.logger.Info().
		Str("diagnosis", result.Diagnosis.Primary).
		Int("symptoms", len(result.Symptoms.Normalized)).
		Float64("latency_seconds", latency).
		Msg("Clinical analysis completed")
	d.metrics.RecordAnalysis("success", latency)
	d.notifier.AnalysisSucceeded(result)
}

// GetMedicineStructure asks for a structured regimen for one medicine. It is
// not debounced and returns nil on any failure.
func (d *Dispatcher) GetMedicineStructure(ctx context.Context, name, diagnosis string, age *int) *models.MedicineStructure {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ms, err := d.analyzer.MedicineStructure(ctx, name, diagnosis, age)
	if err != nil {
		d.logger.Warn().Err(err).Str("medicine", name).Msg("Medicine structure lookup failed")
		return nil
	}
	return ms
}

// Reset clears the held result, cancels the pending timer and abandons any
// in-flight call.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.seq++
	d.generation++
	d.pendingText = ""
	d.inFlight = false
	d.result = nil
}

// Result returns the latest successful analysis, or nil.
func (d *Dispatcher) Result() *models.ClinicalAnalysisResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result
}

// InFlight reports whether an analysis call is outstanding.
func (d *Dispatcher) InFlight() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// Pending reports whether a debounced request is waiting to fire.
func (d *Dispatcher) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
