package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"consult-transcript-service/internal/models"
	"consult-transcript-service/internal/service/upstream"
)

type geminiStub struct {
	mu       sync.Mutex
	paths    []string
	keys     []string
	requests []generateRequest
	reply    func(w http.ResponseWriter, model string)
}

func (s *geminiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req generateRequest
	_ = json.Unmarshal(body, &req)

	s.mu.Lock()
	s.paths = append(s.paths, r.URL.Path)
	s.keys = append(s.keys, r.URL.Query().Get("key"))
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	model := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1beta/models/"), ":generateContent")
	s.reply(w, model)
}

func candidate(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content":      map[string]any{"parts": []any{map[string]any{"text": text}}},
			"finishReason": "STOP",
		}},
	})
	return string(b)
}

func newTestClient(t *testing.T, stub *geminiStub) *Client {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	up := upstream.New(upstream.Config{Service: "gemini"}, srv.Client(), nil)
	up.SetSleep(func(context.Context, time.Duration) error { return nil })
	c := New(Config{BaseURL: srv.URL, APIKey: "g-key"}, up, nil)
	c.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return c
}

const analysisJSON = "```json\n" + `{
  "detected_language": "hi",
  "symptoms_original": ["jwara", "khansi", " "],
  "symptoms_english": ["Fever", "Cough", "Night sweats"],
  "diagnosis": {
    "primary": "Viral upper respiratory infection",
    "confidence": 85,
    "reasoning": "Fever and cough for three days",
    "icd10": "J06.9",
    "alternatives": [{"label": "Influenza", "confidence": "0.2"}, {"label": "", "confidence": 0.1}]
  },
  "prescription": {
    "dosage": "650mg",
    "frequency": "three times daily",
    "timing": ["night", "Morning", "lunch", "morning"],
    "food_timing": "after food",
    "duration_days": "5 days",
    "instructions": "Take with water"
  },
  "advice": "Rest and fluids",
  "follow_up_days": 3
}` + "\n```"

func TestAnalyze(t *testing.T) {
	stub := &geminiStub{reply: func(w http.ResponseWriter, _ string) {
		fmt.Fprint(w, candidate(analysisJSON))
	}}
	c := newTestClient(t, stub)

	res, err := c.Analyze(context.Background(), "  mujhe teen din se jwara aur khansi hai  ", models.LanguageHindi)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.ID == "" || !res.CreatedAt.Equal(c.now()) {
		t.Errorf("expected id and timestamp, got %q %v", res.ID, res.CreatedAt)
	}
	if res.Transcript != "mujhe teen din se jwara aur khansi hai" {
		t.Errorf("unexpected transcript %q", res.Transcript)
	}
	if !reflect.DeepEqual(res.Symptoms.Original, []string{"jwara", "khansi"}) {
		t.Errorf("unexpected original symptoms %v", res.Symptoms.Original)
	}
	if !reflect.DeepEqual(res.Symptoms.Normalized, []string{"Fever", "Cough", "Night sweats"}) {
		t.Errorf("unexpected normalized symptoms %v", res.Symptoms.Normalized)
	}
	if res.Diagnosis.Confidence != 0.85 {
		t.Errorf("expected percent confidence scaled to 0.85, got %v", res.Diagnosis.Confidence)
	}
	if len(res.Diagnosis.Alternatives) != 1 || res.Diagnosis.Alternatives[0].Confidence != 0.2 {
		t.Errorf("unexpected alternatives %+v", res.Diagnosis.Alternatives)
	}
	wantTiming := []models.DayPeriod{models.PeriodMorning, models.PeriodAfternoon, models.PeriodNight}
	if !reflect.DeepEqual(res.Prescription.Timing, wantTiming) {
		t.Errorf("expected %v, got %v", wantTiming, res.Prescription.Timing)
	}
	if res.Prescription.FoodTiming != models.FoodAfter || res.Prescription.DurationDays != 5 {
		t.Errorf("unexpected prescription %+v", res.Prescription)
	}
	if res.FollowUpDays == nil || *res.FollowUpDays != 3 {
		t.Errorf("expected follow up 3, got %v", res.FollowUpDays)
	}
	if res.DetectedLanguage != models.LanguageHindi || res.Model != DefaultModels[0] {
		t.Errorf("unexpected language/model %s %s", res.DetectedLanguage, res.Model)
	}

	if stub.keys[0] != "g-key" {
		t.Errorf("expected api key as query parameter, got %q", stub.keys[0])
	}
	req := stub.requests[0]
	if req.GenerationConfig.ResponseMimeType != "application/json" {
		t.Errorf("expected JSON response mime type, got %q", req.GenerationConfig.ResponseMimeType)
	}
	if !strings.Contains(req.Contents[0].Parts[0].Text, "Expected patient language: hi") {
		t.Errorf("expected language hint in prompt, got %q", req.Contents[0].Parts[0].Text)
	}
}

func TestAnalyze_ModelFallback(t *testing.T) {
	stub := &geminiStub{reply: func(w http.ResponseWriter, model string) {
		if model != "gemini-1.5-flash" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"error":{"code":404,"message":"models/%s is not found"}}`, model)
			return
		}
		fmt.Fprint(w, candidate(`{"diagnosis":{"primary":"Migraine","confidence":0.6}}`))
	}}
	c := newTestClient(t, stub)

	res, err := c.Analyze(context.Background(), "severe headache on one side", models.LanguageAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stub.paths) != 3 {
		t.Errorf("expected 3 requests, got %d", len(stub.paths))
	}
	if stub.paths[2] != "/v1beta/models/gemini-1.5-flash:generateContent" {
		t.Errorf("unexpected path %s", stub.paths[2])
	}
	if res.Model != "gemini-1.5-flash" || res.DetectedLanguage != models.LanguageAuto {
		t.Errorf("unexpected result %+v", res)
	}
	if res.FollowUpDays != nil {
		t.Errorf("expected no follow up, got %d", *res.FollowUpDays)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name   string
		reply  func(w http.ResponseWriter, model string)
		status int
	}{
		{"upstream error", func(w http.ResponseWriter, _ string) {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":{"message":"API key not valid"}}`)
		}, http.StatusForbidden},
		{"blocked prompt", func(w http.ResponseWriter, _ string) {
			fmt.Fprint(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
		}, http.StatusBadGateway},
		{"not json", func(w http.ResponseWriter, _ string) {
			fmt.Fprint(w, candidate("I cannot help with that."))
		}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &geminiStub{reply: tt.reply})
			_, err := c.Analyze(context.Background(), "fever and cough", models.LanguageEnglish)
			if got := upstream.StatusOf(err); got != tt.status {
				t.Errorf("expected status %d, got %d (%v)", tt.status, got, err)
			}
		})
	}
}

func TestAnalyze_Unconfigured(t *testing.T) {
	c := New(Config{}, upstream.New(upstream.Config{}, nil, nil), nil)
	if _, err := c.Analyze(context.Background(), "fever", models.LanguageEnglish); upstream.StatusOf(err) != http.StatusInternalServerError {
		t.Errorf("expected 500, got %v", err)
	}
	if _, err := c.Analyze(context.Background(), "  ", models.LanguageEnglish); upstream.StatusOf(err) != http.StatusBadRequest {
		t.Errorf("expected 400 for empty transcript, got %v", err)
	}
}

func TestMedicineStructure(t *testing.T) {
	stub := &geminiStub{reply: func(w http.ResponseWriter, _ string) {
		fmt.Fprint(w, candidate(`{"dosage":"250mg","frequency":"twice daily","timing":"morning, bedtime","food_timing":"Before meals","duration_days":7}`))
	}}
	c := newTestClient(t, stub)
	age := 8

	ms, err := c.MedicineStructure(context.Background(), "Amoxicillin", "Otitis media", &age)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &models.MedicineStructure{
		Dosage:       "250mg",
		Frequency:    "twice daily",
		Timing:       []models.DayPeriod{models.PeriodMorning, models.PeriodNight},
		FoodTiming:   models.FoodBefore,
		DurationDays: 7,
	}
	if !reflect.DeepEqual(ms, want) {
		t.Errorf("expected %+v, got %+v", want, ms)
	}
	prompt := stub.requests[0].Contents[0].Parts[0].Text
	for _, s := range []string{"Medicine: Amoxicillin", "Diagnosis: Otitis media", "Patient age: 8 years"} {
		if !strings.Contains(prompt, s) {
			t.Errorf("expected prompt to contain %q, got %q", s, prompt)
		}
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"Here you go:\n{\"a\":{\"b\":2}}\nThanks", `{"a":{"b":2}}`},
		{"no json", "no json"},
	}
	for _, tt := range tests {
		if got := stripCodeFences(tt.in); got != tt.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{85, 0.85},
		{100, 1},
		{250, 1},
	}
	for _, tt := range tests {
		if got := clampConfidence(tt.in); got != tt.want {
			t.Errorf("clampConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLooseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{`5`, 5},
		{`"7"`, 7},
		{`"10 days"`, 10},
		{`"80%"`, 80},
		{`"a week"`, 0},
		{`null`, 0},
	}
	for _, tt := range tests {
		var n looseNumber
		if err := json.Unmarshal([]byte(tt.in), &n); err != nil {
			t.Errorf("unmarshal %s: %v", tt.in, err)
			continue
		}
		if float64(n) != tt.want {
			t.Errorf("looseNumber(%s) = %v, want %v", tt.in, n, tt.want)
		}
	}
}
