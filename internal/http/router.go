package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"consult-transcript-service/internal/app"
	"consult-transcript-service/internal/models"
	"consult-transcript-service/internal/observability"
	"consult-transcript-service/internal/observability/metrics"
	"consult-transcript-service/internal/service/analysis"
	"consult-transcript-service/internal/service/consultation"
	"consult-transcript-service/internal/service/transcription"
	"consult-transcript-service/internal/service/upstream"
)

// Transcriber turns a recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcription.Request) (*transcription.Result, error)
}

// History lists and records stored analyses.
type History interface {
	List(ctx context.Context, consultationID string, limit int) ([]models.ClinicalAnalysisResult, error)
	Append(ctx context.Context, r *models.ClinicalAnalysisResult) error
}

// Subscriptions upgrades websocket subscribers.
type Subscriptions interface {
	ServeWS(w http.ResponseWriter, r *http.Request, consultationID string)
}

// Consultations exposes live consultations.
type Consultations interface {
	Get(id string) (*consultation.Consultation, bool)
	Close(id string) error
}

// Handlers holds the collaborators of the HTTP API. Nil collaborators make
// their routes answer 503.
type Handlers struct {
	Transcriber   Transcriber
	Analyzer      analysis.Analyzer
	History       History
	Subscriptions Subscriptions
	Consultations Consultations
	Ready         func(ctx context.Context) error
	Metrics       *metrics.Metrics
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := &Handlers{
		Ready:   application.Ready,
		Metrics: application.Metrics,
	}
	// Assign only non-nil pointers so missing services stay nil interfaces.
	if application.Transcriber != nil {
		h.Transcriber = application.Transcriber
	}
	if application.Analyzer != nil {
		h.Analyzer = application.Analyzer
	}
	if application.Store != nil {
		h.History = application.Store
	}
	if application.Hub != nil {
		h.Subscriptions = application.Hub
	}
	if application.Consultations != nil {
		h.Consultations = application.Consultations
	}
	return h.Routes()
}

// Routes builds the chi router.
func (h *Handlers) Routes() http.Handler {
	if h.Metrics == nil {
		h.Metrics = metrics.DefaultMetrics
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMiddleware(h.Metrics))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", h.readiness)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/transcribe", h.transcribe)
		r.Post("/analyze", h.analyze)
		r.Post("/medicine-structure", h.medicineStructure)
		r.Post("/symptoms/normalize", h.normalizeSymptoms)

		r.Route("/consultations/{id}", func(r chi.Router) {
			r.Get("/", h.consultationStatus)
			r.Delete("/", h.closeConsultation)
			r.Get("/analyses", h.listAnalyses)
			r.Post("/speaker", h.switchSpeaker)
			r.Post("/clear", h.clearTranscript)
			r.Post("/language", h.setLanguage)
			r.Get("/ws", h.subscribe)
		})
	})

	return r
}

func (h *Handlers) readiness(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			writeError(w, &upstream.Error{Status: http.StatusServiceUnavailable, Message: "not ready", Details: err.Error()})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
