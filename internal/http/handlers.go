package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"consult-transcript-service/internal/models"
	"consult-transcript-service/internal/service/consultation"
	"consult-transcript-service/internal/service/symptoms"
	"consult-transcript-service/internal/service/transcription"
	"consult-transcript-service/internal/service/upstream"
)

const (
	maxAudioBodyBytes = 25 << 20
	maxJSONBodyBytes  = 1 << 20
)

var errUnavailable = &upstream.Error{Status: http.StatusServiceUnavailable, Message: "service not configured"}

type errorBody struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"`
}

type analyzeRequest struct {
	Transcript     string `json:"transcript"`
	Language       string `json:"language"`
	ConsultationID string `json:"consultationId"`
}

type medicineRequest struct {
	MedicineName string `json:"medicineName"`
	Diagnosis    string `json:"diagnosis"`
	PatientAge   *int   `json:"patientAge"`
}

type normalizeRequest struct {
	Regional []string `json:"regional"`
	English  []string `json:"english"`
}

type normalizeResponse struct {
	Symptoms []string `json:"symptoms"`
}

type speakerRequest struct {
	Speaker string `json:"speaker"`
}

type languageRequest struct {
	Language string `json:"language"`
}

type consultationStatus struct {
	ID              string                         `json:"id"`
	Language        models.Language                `json:"language"`
	Speaker         models.Speaker                 `json:"speaker"`
	State           string                         `json:"state"`
	Listening       bool                           `json:"listening"`
	Transcript      string                         `json:"transcript"`
	Utterances      int                            `json:"utterances"`
	AnalysisPending bool                           `json:"analysisPending"`
	AnalysisRunning bool                           `json:"analysisRunning"`
	Analysis        *models.ClinicalAnalysisResult `json:"analysis,omitempty"`
	OpenedAt        time.Time                      `json:"openedAt"`
}

func (h *Handlers) transcribe(w http.ResponseWriter, r *http.Request) {
	if h.Transcriber == nil {
		writeError(w, errUnavailable)
		return
	}
	var req transcription.Request
	if err := decodeJSON(w, r, &req, maxAudioBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.Transcriber.Transcribe(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) analyze(w http.ResponseWriter, r *http.Request) {
	if h.Analyzer == nil {
		writeError(w, errUnavailable)
		return
	}
	var req analyzeRequest
	if err := decodeJSON(w, r, &req, maxJSONBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		writeError(w, upstream.BadRequest("transcript is required"))
		return
	}

	res, err := h.Analyzer.Analyze(r.Context(), req.Transcript, models.ParseLanguage(req.Language))
	if err != nil {
		writeError(w, err)
		return
	}
	if req.ConsultationID != "" {
		res.ConsultationID = req.ConsultationID
		if h.History != nil {
			if err := h.History.Append(r.Context(), res); err != nil {
				log.Warn().Err(err).Str("consultation_id", req.ConsultationID).Msg("Failed to store analysis")
			}
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) medicineStructure(w http.ResponseWriter, r *http.Request) {
	if h.Analyzer == nil {
		writeError(w, errUnavailable)
		return
	}
	var req medicineRequest
	if err := decodeJSON(w, r, &req, maxJSONBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.MedicineName) == "" {
		writeError(w, upstream.BadRequest("medicineName is required"))
		return
	}

	res, err := h.Analyzer.MedicineStructure(r.Context(), req.MedicineName, req.Diagnosis, req.PatientAge)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) normalizeSymptoms(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if err := decodeJSON(w, r, &req, maxJSONBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	out := symptoms.NormalizeSymptoms(req.Regional, req.English)
	if out == nil {
		out = []string{}
	}
	writeJSON(w, http.StatusOK, normalizeResponse{Symptoms: out})
}

func (h *Handlers) listAnalyses(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeError(w, errUnavailable)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, upstream.BadRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	list, err := h.History.List(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handlers) subscribe(w http.ResponseWriter, r *http.Request) {
	if h.Subscriptions == nil {
		writeError(w, errUnavailable)
		return
	}
	h.Subscriptions.ServeWS(w, r, chi.URLParam(r, "id"))
}

func (h *Handlers) consultationStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusOf(c))
}

func statusOf(c *consultation.Consultation) consultationStatus {
	return consultationStatus{
		ID:              c.ID,
		Language:        c.Language(),
		Speaker:         c.Session.Speaker(),
		State:           c.Session.State().String(),
		Listening:       c.Session.Running(),
		Transcript:      strings.TrimSpace(c.Transcript()),
		Utterances:      c.Utterances(),
		AnalysisPending: c.Dispatcher.Pending(),
		AnalysisRunning: c.Dispatcher.InFlight(),
		Analysis:        c.Result(),
		OpenedAt:        c.OpenedAt,
	}
}

func (h *Handlers) switchSpeaker(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req speakerRequest
	if err := decodeJSON(w, r, &req, maxJSONBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	speaker := models.Speaker(strings.ToLower(strings.TrimSpace(req.Speaker)))
	if speaker != models.SpeakerPatient && speaker != models.SpeakerDoctor {
		writeError(w, upstream.BadRequest("speaker must be patient or doctor"))
		return
	}
	c.SwitchSpeaker(speaker)
	writeJSON(w, http.StatusOK, statusOf(c))
}

func (h *Handlers) clearTranscript(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	c.ClearTranscript()
	writeJSON(w, http.StatusOK, statusOf(c))
}

func (h *Handlers) setLanguage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req languageRequest
	if err := decodeJSON(w, r, &req, maxJSONBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	raw := strings.ToLower(strings.TrimSpace(req.Language))
	lang := models.ParseLanguage(raw)
	if lang == models.LanguageAuto && raw != string(models.LanguageAuto) {
		writeError(w, upstream.BadRequest("unsupported language"))
		return
	}
	if err := c.SetLanguage(lang); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOf(c))
}

func (h *Handlers) closeConsultation(w http.ResponseWriter, r *http.Request) {
	if h.Consultations == nil {
		writeError(w, errUnavailable)
		return
	}
	if err := h.Consultations.Close(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, consultation.ErrNotFound) {
			writeError(w, &upstream.Error{Status: http.StatusNotFound, Message: err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*consultation.Consultation, bool) {
	if h.Consultations == nil {
		writeError(w, errUnavailable)
		return nil, false
	}
	c, ok := h.Consultations.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, &upstream.Error{Status: http.StatusNotFound, Message: consultation.ErrNotFound.Error()})
		return nil, false
	}
	return c, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return &upstream.Error{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		case errors.Is(err, io.EOF):
			return upstream.BadRequest("request body is empty")
		default:
			return &upstream.Error{Status: http.StatusBadRequest, Message: "invalid JSON body", Details: err.Error()}
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// writeError renders err as {"error","status","details"}.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Status: upstream.StatusOf(err), Error: err.Error()}
	if e, ok := upstream.AsError(err); ok {
		body.Error = e.Message
		body.Details = e.Details
	}
	if body.Status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", body.Status).Msg("Request failed")
	}
	writeJSON(w, body.Status, body)
}
