// Package mock provides a scripted recognition engine for development and
// tests without cloud credentials. Each audio frame advances the script by
// one interim result; once an utterance's partials are exhausted the engine
// emits the final text and then ends the stream, the way browser engines
// stop after a pause in speech.
package mock

import (
	"context"
	"sync"

	"consult-transcript-service/internal/service/stt"
)

// SimulatedUtterance represents a scripted utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials []string // Progressive interim transcripts
	Final    string   // Final transcript text
}

// DefaultUtterances is a short patient history in mixed languages.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials: []string{"I have", "I have fever", "I have fever since"},
		Final:    "I have fever since three days",
	},
	{
		Partials: []string{"mujhe", "mujhe khansi"},
		Final:    "mujhe khansi aur sar dard hai",
	},
	{
		Partials: []string{"body pain", "body pain and"},
		Final:    "body pain and weakness in the evening",
	},
	{
		Partials: []string{"no vomiting"},
		Final:    "no vomiting but loose motions once",
	},
}

// Adapter implements stt.Engine with scripted responses.
type Adapter struct {
	mu            sync.Mutex
	utterances    []SimulatedUtterance
	cb            stt.Callback
	locale        string
	index         int // current utterance
	partialIndex  int // next partial to send
	running       bool
	endAfterFinal bool
	starts        int
	closed        bool
}

// New creates a mock engine cycling through DefaultUtterances.
func New() *Adapter {
	return NewWithScript(DefaultUtterances)
}

// NewWithScript creates a mock engine with a custom script.
func NewWithScript(script []SimulatedUtterance) *Adapter {
	if len(script) == 0 {
		script = DefaultUtterances
	}
	return &Adapter{utterances: script, endAfterFinal: true}
}

// SetEndAfterFinal controls whether the stream ends after each final result.
func (a *Adapter) SetEndAfterFinal(v bool) {
	a.mu.Lock()
	a.endAfterFinal = v
	a.mu.Unlock()
}

// Start begins a scripted session.
func (a *Adapter) Start(ctx context.Context, locale string, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return stt.ErrAlreadyStarted
	}
	a.cb = cb
	a.locale = locale
	a.running = true
	a.starts++
	return nil
}

// SendAudio advances the script by one step and delivers the resulting
// event synchronously.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	if !a.running || a.cb == nil {
		a.mu.Unlock()
		return nil
	}
	cb := a.cb
	utt := a.utterances[a.index%len(a.utterances)]

	if a.partialIndex < len(utt.Partials) {
		partial := utt.Partials[a.partialIndex]
		a.partialIndex++
		a.mu.Unlock()
		cb.OnResults(stt.Event{Results: []stt.Alternative{{Transcript: partial}}})
		return nil
	}

	// Utterance complete: final, then end of stream.
	a.index++
	a.partialIndex = 0
	end := a.endAfterFinal
	if end {
		a.running = false
	}
	a.mu.Unlock()

	cb.OnResults(stt.Event{Results: []stt.Alternative{{Transcript: utt.Final, IsFinal: true}}})
	if end {
		cb.OnEnd()
	}
	return nil
}

// Stop ends the scripted session. Idempotent.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	return nil
}

// Close stops the session and marks the engine released.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	a.closed = true
	return nil
}

// Closed reports whether Close was called.
func (a *Adapter) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Locale returns the locale of the last Start.
func (a *Adapter) Locale() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locale
}

// Starts returns how many times the engine was started.
func (a *Adapter) Starts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.starts
}
