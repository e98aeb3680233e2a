// Package models defines the data structures shared by the transcript
// pipeline, the analysis dispatcher and the event transports.
package models

import "strings"

// Speaker tags which side of the consultation a transcript belongs to.
type Speaker string

const (
	SpeakerPatient Speaker = "patient"
	SpeakerDoctor  Speaker = "doctor"
)

// ParseSpeaker returns the speaker for s, defaulting to the patient.
func ParseSpeaker(s string) Speaker {
	if Speaker(strings.ToLower(strings.TrimSpace(s))) == SpeakerDoctor {
		return SpeakerDoctor
	}
	return SpeakerPatient
}

// Language is the consultation input language.
type Language string

const (
	LanguageAuto    Language = "auto"
	LanguageEnglish Language = "en"
	LanguageHindi   Language = "hi"
	LanguageTelugu  Language = "te"
	LanguageTamil   Language = "ta"
	LanguageKannada Language = "kn"
	LanguageMarathi Language = "mr"
	LanguageBengali Language = "bn"
)

var recognitionLocales = map[Language]string{
	LanguageEnglish: "en-IN",
	LanguageHindi:   "hi-IN",
	LanguageTelugu:  "te-IN",
	LanguageTamil:   "ta-IN",
	LanguageKannada: "kn-IN",
	LanguageMarathi: "mr-IN",
	LanguageBengali: "bn-IN",
}

// ParseLanguage accepts either a short code ("hi") or a locale ("hi-IN").
// Unknown values map to LanguageAuto.
func ParseLanguage(s string) Language {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(s, "-_"); i > 0 {
		s = s[:i]
	}
	l := Language(s)
	if _, ok := recognitionLocales[l]; ok {
		return l
	}
	return LanguageAuto
}

// Locale returns the BCP-47 recognition locale for the language.
// Auto-detect falls back to Indian English.
func (l Language) Locale() string {
	if loc, ok := recognitionLocales[l]; ok {
		return loc
	}
	return recognitionLocales[LanguageEnglish]
}

// TranscriptResult is one incremental result emitted by a capture session.
type TranscriptResult struct {
	Text       string  `json:"text"`
	IsFinal    bool    `json:"isFinal"`
	Confidence float64 `json:"confidence"`
	Speaker    Speaker `json:"speaker"`
	Language   string  `json:"language"`
	Timestamp  int64   `json:"timestamp"`
}

// TranscriptEvent is the published form of a transcript result.
type TranscriptEvent struct {
	EventType      string  `json:"eventType"`
	ConsultationID string  `json:"consultationId"`
	UtteranceID    string  `json:"utteranceId,omitempty"`
	Timestamp      int64   `json:"timestamp"`
	Speaker        Speaker `json:"speaker"`
	Language       string  `json:"language"`
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
}

const (
	EventTranscriptPartial = "consultation.transcript.partial"
	EventTranscriptFinal   = "consultation.transcript.final"
	EventAnalysisCompleted = "consultation.analysis.completed"
	EventAnalysisFailed    = "consultation.analysis.failed"
	EventCaptureError      = "consultation.capture.error"
)
