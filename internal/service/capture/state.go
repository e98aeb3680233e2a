package capture

import "fmt"

// State represents the lifecycle state of a capture session.
type State int

const (
	// StateIdle - No recognition stream; results are ignored.
	StateIdle State = iota
	// StateListening - Engine stream open, results are applied.
	StateListening
	// StateRestartPending - Stream ended or failed recoverably; a restart
	// timer is armed. Audio is dropped until it fires.
	StateRestartPending
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateRestartPending:
		return "RESTART_PENDING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Active returns true if the session intends to keep listening.
func (s State) Active() bool {
	return s == StateListening || s == StateRestartPending
}
