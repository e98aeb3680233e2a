package gemini

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
}

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// text concatenates the parts of the first candidate.
func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// looseNumber accepts 0.8, "0.8", "80%" or "5 days".
type looseNumber float64

var leadingNumber = regexp.MustCompile(`^-?\d+(\.\d+)?`)

func (n *looseNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = looseNumber(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	m := leadingNumber.FindString(strings.TrimSpace(s))
	if m == "" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return err
	}
	*n = looseNumber(f)
	return nil
}

// looseStrings accepts either a JSON array of strings or a single
// comma-separated string.
type looseStrings []string

func (l *looseStrings) UnmarshalJSON(b []byte) error {
	var arr []string
	if err := json.Unmarshal(b, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
			*l = nil
			return nil
		}
		return err
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*l = out
	return nil
}

type wireMedicine struct {
	Dosage       string       `json:"dosage"`
	Frequency    string       `json:"frequency"`
	Timing       looseStrings `json:"timing"`
	FoodTiming   string       `json:"food_timing"`
	DurationDays looseNumber  `json:"duration_days"`
	Instructions string       `json:"instructions"`
}

type wireAlternative struct {
	Label      string      `json:"label"`
	Confidence looseNumber `json:"confidence"`
}

type wireAnalysis struct {
	DetectedLanguage string       `json:"detected_language"`
	SymptomsOriginal looseStrings `json:"symptoms_original"`
	SymptomsEnglish  looseStrings `json:"symptoms_english"`
	Diagnosis        struct {
		Primary      string            `json:"primary"`
		Confidence   looseNumber       `json:"confidence"`
		Reasoning    string            `json:"reasoning"`
		ICD10        string            `json:"icd10"`
		Alternatives []wireAlternative `json:"alternatives"`
	} `json:"diagnosis"`
	Prescription wireMedicine `json:"prescription"`
	Advice       string       `json:"advice"`
	FollowUpDays *looseNumber `json:"follow_up_days"`
}

var fence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// stripCodeFences removes a surrounding markdown code block and any prose
// outside the outermost JSON object.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

// clampConfidence maps v into [0,1]. Values in (1,100] are read as percent.
func clampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v <= 1:
		return v
	case v <= 100:
		return v / 100
	}
	return 1
}
