package consultation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"consult-transcript-service/internal/clock/clocktest"
	"consult-transcript-service/internal/models"
	"consult-transcript-service/internal/service/capture"
	"consult-transcript-service/internal/service/stt"
	"consult-transcript-service/internal/service/stt/mock"
	"consult-transcript-service/internal/stream"
)

type fakeAnalyzer struct {
	mu          sync.Mutex
	transcripts []string
	err         error
}

func (a *fakeAnalyzer) Analyze(_ context.Context, transcript string, _ models.Language) (*models.ClinicalAnalysisResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transcripts = append(a.transcripts, transcript)
	if a.err != nil {
		return nil, a.err
	}
	return &models.ClinicalAnalysisResult{
		ID:        "a-1",
		Diagnosis: models.Diagnosis{Primary: "Viral fever", Confidence: 0.7},
		Symptoms:  models.Symptoms{Normalized: []string{"Fever"}},
	}, nil
}

func (a *fakeAnalyzer) MedicineStructure(context.Context, string, string, *int) (*models.MedicineStructure, error) {
	return nil, errors.New("not used")
}

type fakePublisher struct {
	mu       sync.Mutex
	partials []*models.TranscriptEvent
	finals   []*models.TranscriptEvent
	analyses []*models.AnalysisEvent
}

func (p *fakePublisher) PublishPartial(_ context.Context, ev *models.TranscriptEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.partials = append(p.partials, ev)
	return nil
}

func (p *fakePublisher) PublishFinal(_ context.Context, ev *models.TranscriptEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finals = append(p.finals, ev)
	return nil
}

func (p *fakePublisher) PublishAnalysis(_ context.Context, ev *models.AnalysisEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analyses = append(p.analyses, ev)
	return nil
}

type fakeHistory struct {
	mu      sync.Mutex
	results []*models.ClinicalAnalysisResult
}

func (h *fakeHistory) Append(_ context.Context, r *models.ClinicalAnalysisResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
	return nil
}

type fakeHub struct {
	mu        sync.Mutex
	envelopes []stream.Envelope
}

func (h *fakeHub) Broadcast(env stream.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.envelopes = append(h.envelopes, env)
}

func (h *fakeHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.envelopes {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	mgr       *Manager
	clock     *clocktest.Fake
	engine    *mock.Adapter
	analyzer  *fakeAnalyzer
	publisher *fakePublisher
	history   *fakeHistory
	hub       *fakeHub
}

var script = []mock.SimulatedUtterance{
	{Partials: []string{"mujhe"}, Final: "mujhe teen din se bukhar hai"},
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:     &clocktest.Fake{},
		engine:    mock.NewWithScript(script),
		analyzer:  &fakeAnalyzer{},
		publisher: &fakePublisher{},
		history:   &fakeHistory{},
		hub:       &fakeHub{},
	}
	h.engine.SetEndAfterFinal(false)
	h.mgr = NewManager(Config{Debounce: 3 * time.Second}, Deps{
		Engines: func(context.Context, OpenRequest) (stt.Engine, error) {
			return h.engine, nil
		},
		Analyzer:  h.analyzer,
		Publisher: h.publisher,
		History:   h.history,
		Hub:       h.hub,
		AfterFunc: h.clock.AfterFunc,
	})
	t.Cleanup(h.mgr.CloseAll)
	return h
}

func (h *harness) speak(t *testing.T, c *Consultation, frames int) {
	t.Helper()
	for i := 0; i < frames; i++ {
		if err := c.SendAudio(context.Background(), []byte{0, 1}); err != nil {
			t.Fatalf("send audio: %v", err)
		}
	}
}

func TestOpen_Validation(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.mgr.Open(context.Background(), OpenRequest{}); !errors.Is(err, ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}

	boom := errors.New("no credentials")
	m := NewManager(Config{}, Deps{
		Engines: func(context.Context, OpenRequest) (stt.Engine, error) { return nil, boom },
	})
	if _, _, err := m.Open(context.Background(), OpenRequest{ID: "c-1"}); !errors.Is(err, boom) {
		t.Errorf("expected factory error, got %v", err)
	}

	m = NewManager(Config{}, Deps{})
	if _, _, err := m.Open(context.Background(), OpenRequest{ID: "c-1"}); !errors.Is(err, capture.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported without engines, got %v", err)
	}
}

func TestOpen_ReturnsExisting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c1, created, err := h.mgr.Open(ctx, OpenRequest{ID: "c-1", Language: models.LanguageHindi})
	if err != nil || !created {
		t.Fatalf("open: created=%v err=%v", created, err)
	}
	c2, created, err := h.mgr.Open(ctx, OpenRequest{ID: "c-1"})
	if err != nil || created {
		t.Fatalf("reopen: created=%v err=%v", created, err)
	}
	if c1 != c2 {
		t.Error("expected the same consultation")
	}
	if h.engine.Starts() != 1 {
		t.Errorf("expected one engine start, got %d", h.engine.Starts())
	}
	if h.engine.Locale() != "hi-IN" {
		t.Errorf("expected hi-IN locale, got %s", h.engine.Locale())
	}
	if !c1.Session.Running() || c1.Session.Speaker() != models.SpeakerPatient {
		t.Errorf("expected running patient session")
	}
}

func TestTranscriptFlow_AnalysisSucceeded(t *testing.T) {
	h := newHarness(t)
	c, _, err := h.mgr.Open(context.Background(), OpenRequest{ID: "c-1", Language: models.LanguageHindi})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	h.speak(t, c, 2)

	if len(h.publisher.partials) != 1 || len(h.publisher.finals) != 1 {
		t.Fatalf("expected 1 partial and 1 final, got %d/%d", len(h.publisher.partials), len(h.publisher.finals))
	}
	partial, final := h.publisher.partials[0], h.publisher.finals[0]
	if partial.UtteranceID != "c-1-utt-1" || final.UtteranceID != "c-1-utt-1" {
		t.Errorf("expected shared utterance id, got %s / %s", partial.UtteranceID, final.UtteranceID)
	}
	if final.EventType != models.EventTranscriptFinal || final.ConsultationID != "c-1" {
		t.Errorf("unexpected final event %+v", final)
	}
	if c.Utterances() != 1 {
		t.Errorf("expected 1 utterance, got %d", c.Utterances())
	}

	pending := h.clock.Pending()
	if len(pending) != 1 || pending[0].Delay != 3*time.Second {
		t.Fatalf("expected one debounce timer of 3s, got %d", len(pending))
	}
	if len(h.analyzer.transcripts) != 0 {
		t.Fatal("analysis ran before debounce elapsed")
	}

	h.clock.FirePending()

	if len(h.analyzer.transcripts) != 1 || h.analyzer.transcripts[0] != "mujhe teen din se bukhar hai" {
		t.Fatalf("unexpected analyzed transcripts %q", h.analyzer.transcripts)
	}
	if len(h.publisher.analyses) != 1 || h.publisher.analyses[0].EventType != models.EventAnalysisCompleted {
		t.Fatalf("expected completed analysis event, got %+v", h.publisher.analyses)
	}
	if len(h.history.results) != 1 || h.history.results[0].ConsultationID != "c-1" {
		t.Errorf("expected stored result for c-1, got %+v", h.history.results)
	}
	if c.Result() == nil || c.Result().Diagnosis.Primary != "Viral fever" {
		t.Errorf("expected latest result held, got %+v", c.Result())
	}

	want := []string{stream.TypeTranscriptPartial, stream.TypeTranscriptFinal, stream.TypeAnalysisCompleted}
	got := h.hub.types()
	if len(got) != len(want) {
		t.Fatalf("expected envelopes %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("envelope %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestTranscriptFlow_AnalysisFailed(t *testing.T) {
	h := newHarness(t)
	h.analyzer.err = errors.New("upstream 500")
	c, _, _ := h.mgr.Open(context.Background(), OpenRequest{ID: "c-1"})

	h.speak(t, c, 2)
	h.clock.FirePending()

	types := h.hub.types()
	if types[len(types)-1] != stream.TypeAnalysisFailed {
		t.Errorf("expected analysis.failed envelope last, got %v", types)
	}
	if len(h.history.results) != 0 {
		t.Error("failed analysis must not be stored")
	}
	if len(h.publisher.analyses) != 1 || h.publisher.analyses[0].Error != "upstream 500" {
		t.Errorf("expected failed analysis event, got %+v", h.publisher.analyses)
	}
	if c.Result() != nil {
		t.Error("expected no result")
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	c, _, _ := h.mgr.Open(context.Background(), OpenRequest{ID: "c-1"})
	h.speak(t, c, 2)

	if err := h.mgr.Close("c-1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := h.mgr.Get("c-1"); ok {
		t.Error("expected consultation forgotten")
	}
	if c.Session.Running() {
		t.Error("expected capture stopped")
	}
	if c.Dispatcher.Pending() {
		t.Error("expected pending analysis cancelled")
	}
	if h.clock.FirePending(); len(h.analyzer.transcripts) != 0 {
		t.Error("analysis ran after close")
	}
	if err := h.mgr.Close("c-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Utterance numbering restarts for a reopened id.
	c, _, _ = h.mgr.Open(context.Background(), OpenRequest{ID: "c-1"})
	h.speak(t, c, 1)
	last := h.publisher.partials[len(h.publisher.partials)-1]
	if last.UtteranceID != "c-1-utt-1" {
		t.Errorf("expected numbering to restart, got %s", last.UtteranceID)
	}
}

func TestCloseAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mgr.Open(ctx, OpenRequest{ID: "c-1"})
	h.mgr.Open(ctx, OpenRequest{ID: "c-2"})

	if len(h.mgr.IDs()) != 2 {
		t.Fatalf("expected 2 live consultations, got %v", h.mgr.IDs())
	}
	h.mgr.CloseAll()
	if len(h.mgr.IDs()) != 0 {
		t.Errorf("expected none after CloseAll, got %v", h.mgr.IDs())
	}
}

func TestStopCapture_KeepsPendingAnalysis(t *testing.T) {
	h := newHarness(t)
	c, _, _ := h.mgr.Open(context.Background(), OpenRequest{ID: "c-1"})
	h.speak(t, c, 2)

	c.StopCapture()
	h.clock.FirePending()

	if len(h.analyzer.transcripts) != 1 {
		t.Errorf("expected pending analysis to run after capture stop, got %d", len(h.analyzer.transcripts))
	}
}

func TestResumeCapture(t *testing.T) {
	h := newHarness(t)
	c, _, _ := h.mgr.Open(context.Background(), OpenRequest{ID: "c-1"})

	if err := c.ResumeCapture(models.SpeakerDoctor, ""); err != nil {
		t.Fatalf("resume while running: %v", err)
	}
	if h.engine.Starts() != 1 || c.Session.Speaker() != models.SpeakerDoctor {
		t.Errorf("expected speaker switch without restart, starts=%d speaker=%s", h.engine.Starts(), c.Session.Speaker())
	}

	c.StopCapture()
	if c.Session.Running() {
		t.Fatal("expected capture stopped")
	}
	if err := c.ResumeCapture("", models.LanguageBengali); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !c.Session.Running() || h.engine.Starts() != 2 {
		t.Errorf("expected restarted capture, running=%v starts=%d", c.Session.Running(), h.engine.Starts())
	}
	if c.Session.Speaker() != models.SpeakerDoctor {
		t.Errorf("expected speaker kept, got %s", c.Session.Speaker())
	}
	if c.Language() != models.LanguageBengali || h.engine.Locale() != "bn-IN" {
		t.Errorf("expected bengali on resume, got %s / %s", c.Language(), h.engine.Locale())
	}
}

func TestSwitchSpeaker_KeepsListening(t *testing.T) {
	h := newHarness(t)
	c, _, _ := h.mgr.Open(context.Background(), OpenRequest{ID: "c-1"})

	c.SwitchSpeaker(models.SpeakerDoctor)
	h.speak(t, c, 2)

	if h.engine.Starts() != 1 || !c.Session.Running() {
		t.Errorf("expected no restart, starts=%d", h.engine.Starts())
	}
	if len(h.publisher.finals) != 1 || h.publisher.finals[0].Speaker != models.SpeakerDoctor {
		t.Fatalf("expected final tagged doctor, got %+v", h.publisher.finals)
	}
}

func TestClearTranscript(t *testing.T) {
	h := newHarness(t)
	c, _, _ := h.mgr.Open(context.Background(), OpenRequest{ID: "c-1"})
	h.speak(t, c, 2)
	h.clock.FirePending()
	if c.Result() == nil {
		t.Fatal("expected analysis before clear")
	}

	c.ClearTranscript()

	if c.Transcript() != "" {
		t.Errorf("expected empty transcript, got %q", c.Transcript())
	}
	if !c.Session.Running() || h.engine.Starts() != 1 {
		t.Errorf("expected capture kept, running=%v starts=%d", c.Session.Running(), h.engine.Starts())
	}
	if c.Result() == nil {
		t.Error("expected held analysis kept after clear")
	}
}

func TestSetLanguage_RestartsRunningCapture(t *testing.T) {
	h := newHarness(t)
	c, _, _ := h.mgr.Open(context.Background(), OpenRequest{ID: "c-1", Language: models.LanguageHindi})

	if err := c.SetLanguage(models.LanguageTelugu); err != nil {
		t.Fatalf("set language: %v", err)
	}
	if h.engine.Starts() != 2 || h.engine.Locale() != "te-IN" {
		t.Errorf("expected restart with te-IN, starts=%d locale=%s", h.engine.Starts(), h.engine.Locale())
	}
	if c.Language() != models.LanguageTelugu || !c.Session.Running() {
		t.Errorf("expected running telugu session, got %s", c.Language())
	}

	c.StopCapture()
	if err := c.SetLanguage(models.LanguageHindi); err != nil {
		t.Fatalf("set language while stopped: %v", err)
	}
	if h.engine.Starts() != 2 || c.Session.Running() {
		t.Errorf("expected stopped capture left stopped, starts=%d", h.engine.Starts())
	}
	if c.Session.Locale() != "hi-IN" {
		t.Errorf("expected hi-IN for next start, got %s", c.Session.Locale())
	}
}

func TestAnalysisResult_StampedWithoutRace(t *testing.T) {
	h := newHarness(t)
	c, _, _ := h.mgr.Open(context.Background(), OpenRequest{ID: "c-1"})
	h.speak(t, c, 2)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if r := c.Result(); r != nil && r.ConsultationID != "c-1" {
				t.Error("observed result without consultation id")
				return
			}
		}
	}()
	h.clock.FirePending()
	close(done)
	wg.Wait()

	r := c.Result()
	if r == nil || r.ConsultationID != "c-1" {
		t.Fatalf("expected stamped result, got %+v", r)
	}
	if len(h.history.results) != 1 || h.history.results[0] != r {
		t.Errorf("expected stored result to be the held result")
	}
	if len(h.publisher.analyses) != 1 || h.publisher.analyses[0].Result.ConsultationID != "c-1" {
		t.Errorf("expected published result stamped, got %+v", h.publisher.analyses)
	}
}

func TestClose_ReleasesEngine(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.mgr.Open(context.Background(), OpenRequest{ID: "c-1"}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := h.mgr.Close("c-1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !h.engine.Closed() {
		t.Error("expected engine closed with the consultation")
	}
}
