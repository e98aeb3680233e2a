// Package utterance numbers the spoken utterances of a consultation and
// tracks which one incoming transcript results belong to.
package utterance

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of the current utterance.
type State int

const (
	// StateIdle - No utterance has started yet.
	StateIdle State = iota
	// StateOpen - Interim results are arriving for the current utterance.
	StateOpen
	// StateFinalized - A final result closed the utterance. The next result
	// starts a new one.
	StateFinalized
	// StateDropped - The utterance was abandoned without a final, e.g. after
	// a capture fault or a cleared transcript.
	StateDropped
	// StateClosed - The consultation ended. Terminal.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOpen:
		return "OPEN"
	case StateFinalized:
		return "FINALIZED"
	case StateDropped:
		return "DROPPED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ErrClosed is returned once the tracker has been closed.
var ErrClosed = errors.New("utterance tracker is closed")

// Tracker assigns utterance IDs to the results of one consultation.
//
// State transitions:
//
//	IDLE / FINALIZED / DROPPED ──Partial()──→ OPEN (new ID)
//	OPEN ──Partial()──→ OPEN (same ID)
//	any non-closed ──Final()──→ FINALIZED
//	OPEN ──Drop()──→ DROPPED
//	any ──Close()──→ CLOSED
type Tracker struct {
	mu             sync.Mutex
	gen            *Generator
	consultationID string
	id             string
	state          State
	partials       int
}

// NewTracker creates an idle tracker drawing IDs from gen.
func NewTracker(gen *Generator, consultationID string) *Tracker {
	return &Tracker{gen: gen, consultationID: consultationID}
}

// Partial returns the ID of the open utterance, starting one if needed.
func (t *Tracker) Partial() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateClosed:
		return "", ErrClosed
	case StateOpen:
	default:
		t.openLocked()
	}
	t.partials++
	return t.id, nil
}

// Final returns the ID the final result belongs to and finalizes it. A final
// with no preceding partial gets an utterance of its own.
func (t *Tracker) Final() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateClosed:
		return "", ErrClosed
	case StateOpen:
	default:
		t.openLocked()
	}
	t.state = StateFinalized
	return t.id, nil
}

// Drop abandons the open utterance. It reports whether one was open.
func (t *Tracker) Drop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateOpen {
		return false
	}
	t.state = StateDropped
	return true
}

// Close ends tracking. Idempotent.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateClosed
}

// Current returns the latest utterance ID and state.
func (t *Tracker) Current() (string, State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id, t.state
}

// Partials returns how many interim results the current utterance received.
func (t *Tracker) Partials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.partials
}

func (t *Tracker) openLocked() {
	t.id = t.gen.Next(t.consultationID)
	t.state = StateOpen
	t.partials = 0
}
