package gemini

import (
	"fmt"
	"strings"

	"consult-transcript-service/internal/models"
)

const analysisSystemPrompt = `You are a clinical documentation assistant for doctors in India.
You read a doctor-patient consultation transcript that may mix English with Hindi, Marathi,
Telugu, Tamil, Kannada or Bengali, written in native script or transliterated.
Extract the clinical picture. Do not invent findings that are not supported by the transcript.
Respond with a single JSON object and nothing else, using exactly these keys:
{
  "detected_language": "ISO 639-1 code of the dominant patient language",
  "symptoms_original": ["symptom phrases exactly as spoken"],
  "symptoms_english": ["the same symptoms as short English clinical labels"],
  "diagnosis": {
    "primary": "most likely diagnosis",
    "confidence": 0.0,
    "reasoning": "one or two sentences",
    "icd10": "ICD-10 code if known",
    "alternatives": [{"label": "differential", "confidence": 0.0}]
  },
  "prescription": {
    "dosage": "e.g. 500mg",
    "frequency": "e.g. twice daily",
    "timing": ["morning", "afternoon", "evening", "night"],
    "food_timing": "before_food | after_food | with_food | empty_stomach | any",
    "duration_days": 0,
    "instructions": "free text"
  },
  "advice": "lifestyle and care advice",
  "follow_up_days": 0
}
Confidence values are between 0 and 1.`

const medicineSystemPrompt = `You are a clinical pharmacology assistant for doctors in India.
Given a medicine name and a working diagnosis, propose a standard adult regimen unless an age
is given. Respond with a single JSON object and nothing else, using exactly these keys:
{
  "dosage": "e.g. 650mg",
  "frequency": "e.g. three times daily",
  "timing": ["morning", "afternoon", "evening", "night"],
  "food_timing": "before_food | after_food | with_food | empty_stomach | any",
  "duration_days": 0,
  "instructions": "free text"
}`

func analysisPrompt(transcript string, lang models.Language) string {
	var b strings.Builder
	if lang != models.LanguageAuto {
		fmt.Fprintf(&b, "Expected patient language: %s\n", lang)
	}
	b.WriteString("Consultation transcript:\n")
	b.WriteString(transcript)
	return b.String()
}

func medicinePrompt(name, diagnosis string, age *int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Medicine: %s\n", name)
	if diagnosis != "" {
		fmt.Fprintf(&b, "Diagnosis: %s\n", diagnosis)
	}
	if age != nil {
		fmt.Fprintf(&b, "Patient age: %d years\n", *age)
	}
	return b.String()
}
