package models

import (
	"strings"
	"time"
)

// DayPeriod is one administration slot of a prescription.
type DayPeriod string

const (
	PeriodMorning   DayPeriod = "morning"
	PeriodAfternoon DayPeriod = "afternoon"
	PeriodEvening   DayPeriod = "evening"
	PeriodNight     DayPeriod = "night"
)

var periodOrder = []DayPeriod{PeriodMorning, PeriodAfternoon, PeriodEvening, PeriodNight}

// NormalizePeriods returns the recognised periods of in, deduplicated and in
// canonical day order. Unknown values are dropped.
func NormalizePeriods(in []string) []DayPeriod {
	seen := make(map[DayPeriod]bool, len(in))
	for _, p := range in {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "morning", "am", "breakfast":
			seen[PeriodMorning] = true
		case "afternoon", "noon", "lunch":
			seen[PeriodAfternoon] = true
		case "evening":
			seen[PeriodEvening] = true
		case "night", "bedtime", "dinner", "pm":
			seen[PeriodNight] = true
		}
	}
	out := make([]DayPeriod, 0, len(seen))
	for _, p := range periodOrder {
		if seen[p] {
			out = append(out, p)
		}
	}
	return out
}

// FoodTiming relates a dose to meals.
type FoodTiming string

const (
	FoodBefore       FoodTiming = "before_food"
	FoodAfter        FoodTiming = "after_food"
	FoodWith         FoodTiming = "with_food"
	FoodEmptyStomach FoodTiming = "empty_stomach"
	FoodAny          FoodTiming = "any"
)

// ParseFoodTiming maps free-form food timing text to a FoodTiming.
func ParseFoodTiming(s string) FoodTiming {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	switch {
	case s == "":
		return FoodAny
	case strings.Contains(s, "empty"):
		return FoodEmptyStomach
	case strings.HasPrefix(s, "before"):
		return FoodBefore
	case strings.HasPrefix(s, "after"):
		return FoodAfter
	case strings.HasPrefix(s, "with"):
		return FoodWith
	}
	return FoodAny
}

// Symptoms holds the symptom phrases as spoken and their English labels.
type Symptoms struct {
	Original   []string `json:"original"`
	Normalized []string `json:"normalized"`
}

// AlternativeDiagnosis is a ranked differential.
type AlternativeDiagnosis struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Diagnosis is the primary working diagnosis and its differentials.
type Diagnosis struct {
	Primary      string                 `json:"primary"`
	Confidence   float64                `json:"confidence"`
	Reasoning    string                 `json:"reasoning"`
	ICD10        string                 `json:"icd10,omitempty"`
	Alternatives []AlternativeDiagnosis `json:"alternatives,omitempty"`
}

// MedicineStructure is the structured dosing for one medicine.
type MedicineStructure struct {
	Dosage       string      `json:"dosage"`
	Frequency    string      `json:"frequency"`
	Timing       []DayPeriod `json:"timing"`
	FoodTiming   FoodTiming  `json:"foodTiming"`
	DurationDays int         `json:"durationDays"`
	Instructions string      `json:"instructions"`
}

// ClinicalAnalysisResult is the normalized output of one analysis call.
// It is never mutated after it is returned.
type ClinicalAnalysisResult struct {
	ID               string            `json:"id"`
	ConsultationID   string            `json:"consultationId,omitempty"`
	Transcript       string            `json:"transcript"`
	Symptoms         Symptoms          `json:"symptoms"`
	Diagnosis        Diagnosis         `json:"diagnosis"`
	Prescription     MedicineStructure `json:"prescription"`
	Advice           string            `json:"advice"`
	FollowUpDays     *int              `json:"followUpDays,omitempty"`
	DetectedLanguage Language          `json:"detectedLanguage"`
	Model            string            `json:"model,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// AnalysisEvent is the published form of a completed or failed analysis.
type AnalysisEvent struct {
	EventType      string                  `json:"eventType"`
	ConsultationID string                  `json:"consultationId"`
	Timestamp      int64                   `json:"timestamp"`
	Result         *ClinicalAnalysisResult `json:"result,omitempty"`
	Error          string                  `json:"error,omitempty"`
}
