package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"consult-transcript-service/internal/models"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("schema validation failed")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the structural invariants of outgoing payloads. Unknown
// payload types pass.
func (v *Validator) Validate(event any) error {
	var errs []error
	switch e := event.(type) {
	case *models.ClinicalAnalysisResult:
		errs = v.analysis(e)
	case *models.MedicineStructure:
		errs = v.medicine("", e)
	case *models.TranscriptEvent:
		errs = v.transcript(e)
	case *models.AnalysisEvent:
		errs = v.analysisEvent(e)
	case nil:
		errs = append(errs, errors.New("nil payload"))
	}

	if len(errs) > 0 {
		err := fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
		log.Debug().Err(err).Type("payload", event).Msg("Schema validation failed")
		return err
	}
	return nil
}

func (v *Validator) analysis(r *models.ClinicalAnalysisResult) []error {
	if r == nil {
		return []error{errors.New("nil analysis result")}
	}
	var errs []error
	errs = append(errs, confidence("diagnosis.confidence", r.Diagnosis.Confidence)...)
	for i, alt := range r.Diagnosis.Alternatives {
		if strings.TrimSpace(alt.Label) == "" {
			errs = append(errs, fmt.Errorf("diagnosis.alternatives[%d].label is empty", i))
		}
		errs = append(errs, confidence(fmt.Sprintf("diagnosis.alternatives[%d].confidence", i), alt.Confidence)...)
	}

	seen := make(map[string]bool, len(r.Symptoms.Normalized))
	for _, s := range r.Symptoms.Normalized {
		k := strings.ToLower(s)
		if seen[k] {
			errs = append(errs, fmt.Errorf("symptoms.normalized has duplicate %q", s))
		}
		seen[k] = true
	}

	errs = append(errs, v.medicine("prescription.", &r.Prescription)...)
	if r.FollowUpDays != nil && *r.FollowUpDays < 0 {
		errs = append(errs, fmt.Errorf("followUpDays must not be negative, got %d", *r.FollowUpDays))
	}
	return errs
}

func (v *Validator) medicine(prefix string, m *models.MedicineStructure) []error {
	if m == nil {
		return []error{errors.New("nil medicine structure")}
	}
	var errs []error
	last := -1
	seen := make(map[models.DayPeriod]bool, len(m.Timing))
	for _, p := range m.Timing {
		idx := periodIndex(p)
		switch {
		case idx < 0:
			errs = append(errs, fmt.Errorf("%stiming has unknown period %q", prefix, p))
		case seen[p]:
			errs = append(errs, fmt.Errorf("%stiming has duplicate period %q", prefix, p))
		case idx < last:
			errs = append(errs, fmt.Errorf("%stiming is not in day order", prefix))
		}
		seen[p] = true
		if idx > last {
			last = idx
		}
	}
	switch m.FoodTiming {
	case "", models.FoodBefore, models.FoodAfter, models.FoodWith, models.FoodEmptyStomach, models.FoodAny:
	default:
		errs = append(errs, fmt.Errorf("%sfoodTiming %q is unknown", prefix, m.FoodTiming))
	}
	if m.DurationDays < 0 {
		errs = append(errs, fmt.Errorf("%sdurationDays must not be negative", prefix))
	}
	return errs
}

func (v *Validator) transcript(e *models.TranscriptEvent) []error {
	var errs []error
	if e.ConsultationID == "" {
		errs = append(errs, errors.New("consultationId is required"))
	}
	if e.EventType != models.EventTranscriptPartial && e.EventType != models.EventTranscriptFinal {
		errs = append(errs, fmt.Errorf("eventType %q is not a transcript event", e.EventType))
	}
	return append(errs, confidence("confidence", e.Confidence)...)
}

func (v *Validator) analysisEvent(e *models.AnalysisEvent) []error {
	var errs []error
	if e.ConsultationID == "" {
		errs = append(errs, errors.New("consultationId is required"))
	}
	switch e.EventType {
	case models.EventAnalysisCompleted:
		if e.Result == nil {
			errs = append(errs, errors.New("completed analysis event has no result"))
		} else {
			errs = append(errs, v.analysis(e.Result)...)
		}
	case models.EventAnalysisFailed:
		if e.Error == "" {
			errs = append(errs, errors.New("failed analysis event has no error"))
		}
	default:
		errs = append(errs, fmt.Errorf("eventType %q is not an analysis event", e.EventType))
	}
	return errs
}

func confidence(field string, c float64) []error {
	if c < 0 || c > 1 {
		return []error{fmt.Errorf("%s must be within [0,1], got %v", field, c)}
	}
	return nil
}

func periodIndex(p models.DayPeriod) int {
	switch p {
	case models.PeriodMorning:
		return 0
	case models.PeriodAfternoon:
		return 1
	case models.PeriodEvening:
		return 2
	case models.PeriodNight:
		return 3
	}
	return -1
}
