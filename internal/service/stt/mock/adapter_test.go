package mock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"consult-transcript-service/internal/service/stt"
)

// testCallback implements stt.Callback for testing
type testCallback struct {
	mu       sync.Mutex
	partials []string
	finals   []string
	errors   []error
	ends     int
}

func (c *testCallback) OnResults(ev stt.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range ev.Results {
		if r.IsFinal {
			c.finals = append(c.finals, r.Transcript)
		} else {
			c.partials = append(c.partials, r.Transcript)
		}
	}
}

func (c *testCallback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func (c *testCallback) OnEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ends++
}

func TestAdapter_New(t *testing.T) {
	adapter := New()
	if adapter == nil {
		t.Fatal("expected non-nil adapter")
	}
	if adapter.running {
		t.Error("expected adapter to not be running initially")
	}
	if len(adapter.utterances) != len(DefaultUtterances) {
		t.Errorf("expected default script, got %d utterances", len(adapter.utterances))
	}
}

func TestAdapter_Start(t *testing.T) {
	adapter := New()
	cb := &testCallback{}

	if err := adapter.Start(context.Background(), "hi-IN", cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.Locale() != "hi-IN" {
		t.Errorf("expected locale hi-IN, got %s", adapter.Locale())
	}
	if adapter.Starts() != 1 {
		t.Errorf("expected 1 start, got %d", adapter.Starts())
	}
}

func TestAdapter_Start_AlreadyStarted(t *testing.T) {
	adapter := New()
	cb := &testCallback{}
	adapter.Start(context.Background(), "en-IN", cb)

	err := adapter.Start(context.Background(), "en-IN", cb)
	if !errors.Is(err, stt.ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestAdapter_SendAudio_ScriptedSequence(t *testing.T) {
	script := []SimulatedUtterance{
		{Partials: []string{"a", "a b"}, Final: "a b c"},
	}
	adapter := NewWithScript(script)
	cb := &testCallback{}
	adapter.Start(context.Background(), "en-IN", cb)

	for i := 0; i < 3; i++ {
		if err := adapter.SendAudio(context.Background(), []byte("audio")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(cb.partials) != 2 {
		t.Errorf("expected 2 partials, got %d", len(cb.partials))
	}
	if len(cb.finals) != 1 || cb.finals[0] != "a b c" {
		t.Errorf("expected final 'a b c', got %v", cb.finals)
	}
	if cb.ends != 1 {
		t.Errorf("expected stream end after final, got %d", cb.ends)
	}

	// Stream ended: further audio is ignored until restarted.
	adapter.SendAudio(context.Background(), []byte("audio"))
	if len(cb.partials) != 2 {
		t.Errorf("expected no partials after end, got %d", len(cb.partials))
	}
}

func TestAdapter_SetEndAfterFinal(t *testing.T) {
	adapter := NewWithScript([]SimulatedUtterance{{Final: "only final"}})
	adapter.SetEndAfterFinal(false)
	cb := &testCallback{}
	adapter.Start(context.Background(), "en-IN", cb)

	adapter.SendAudio(context.Background(), nil)
	adapter.SendAudio(context.Background(), nil)

	if len(cb.finals) != 2 {
		t.Errorf("expected 2 finals, got %d", len(cb.finals))
	}
	if cb.ends != 0 {
		t.Errorf("expected no stream end, got %d", cb.ends)
	}
}

func TestAdapter_Stop_Idempotent(t *testing.T) {
	adapter := New()
	adapter.Start(context.Background(), "en-IN", &testCallback{})

	if err := adapter.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := adapter.Stop(); err != nil {
		t.Fatalf("unexpected error on second stop: %v", err)
	}
}

func TestAdapter_SendAudio_AfterStop(t *testing.T) {
	adapter := New()
	cb := &testCallback{}
	adapter.Start(context.Background(), "en-IN", cb)
	adapter.Stop()

	if err := adapter.SendAudio(context.Background(), []byte("audio")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cb.partials) != 0 {
		t.Errorf("expected no partials after stop, got %d", len(cb.partials))
	}
}
