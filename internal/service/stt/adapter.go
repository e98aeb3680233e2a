// Package stt defines the boundary to continuous speech-to-text engines.
package stt

import (
	"context"
	"errors"
	"fmt"
)

// Alternative is one recognition result inside an engine event.
type Alternative struct {
	Transcript string
	IsFinal    bool
}

// Event is a single incremental update from the engine. It may carry any
// mix of final and interim results.
type Event struct {
	Results []Alternative
}

// Callback receives engine output.
type Callback interface {
	// OnResults is called for every incremental recognition update.
	OnResults(ev Event)

	// OnError is called when the engine faults. Errors should be *Error
	// so the caller can classify them.
	OnError(err error)

	// OnEnd is called when the engine stops producing results on its own,
	// e.g. after a pause in speech or a provider stream limit.
	OnEnd()
}

// Engine is a continuous, locale-configurable recognizer. Implementations
// must not invoke the callback synchronously from Start or Stop.
type Engine interface {
	// Start begins a recognition stream for the given locale.
	// Returns ErrAlreadyStarted if a stream is still open.
	Start(ctx context.Context, locale string, cb Callback) error

	// SendAudio feeds audio to the open stream.
	SendAudio(ctx context.Context, audio []byte) error

	// Stop ends the stream. The engine may be started again. Safe to call
	// twice.
	Stop() error

	// Close stops any stream and releases the engine's client. The engine
	// is not used after Close.
	Close() error
}

// ErrAlreadyStarted is returned by Engine.Start when a stream is open.
var ErrAlreadyStarted = errors.New("recognition already started")

// ErrorCode classifies engine faults.
type ErrorCode string

const (
	CodeNoSpeech             ErrorCode = "no-speech"
	CodeAborted              ErrorCode = "aborted"
	CodeNetwork              ErrorCode = "network"
	CodeAudioCapture         ErrorCode = "audio-capture"
	CodeNotAllowed           ErrorCode = "not-allowed"
	CodeServiceNotAllowed    ErrorCode = "service-not-allowed"
	CodeLanguageNotSupported ErrorCode = "language-not-supported"
	CodeUnknown              ErrorCode = "unknown"
)

// Recoverable reports whether a session should restart itself after c.
func (c ErrorCode) Recoverable() bool {
	switch c {
	case CodeNoSpeech, CodeAborted, CodeNetwork, CodeAudioCapture:
		return true
	}
	return false
}

// Error is an engine fault with a classification code.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the classification of err, CodeUnknown if it has none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
