// Package serdbg provides the core of a serial-port debugging tool: an
// incremental byte-stream pattern matcher that answers received frames
// automatically, a sequencer that walks timed transmission scripts, and the
// message-passing layer that lets a dedicated I/O goroutine drive both while
// a controller goroutine observes the results.
//
// The I/O side is the Session. It owns the Transport and the Engine (matcher,
// sequencer and data tables) exclusively; every other goroutine talks to it
// through a Messenger. The controller side is the Monitor, which turns the
// per-byte analysis events into log lines.
//
// Example usage:
//
//	engine, report, err := serdbg.Build(defs)
//	if err != nil {
//		log.Fatal(err)
//	}
//	msgr := serdbg.NewMessenger(serdbg.DefaultQueueSize, logger)
//	sess, err := serdbg.NewSession(&serdbg.SessionConfig{
//		Transport: port,
//		Engine:    engine,
//		Messenger: msgr,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sess.CloseSync()
package serdbg

import (
	"errors"
	"time"
)

var (
	// ErrConfigRequired is returned when a required configuration parameter is missing
	ErrConfigRequired = errors.New("config required")
	// ErrInvalidPattern is returned when a receive pattern cannot be parsed or is empty
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrInvalidHex is returned when a hex string is malformed
	ErrInvalidHex = errors.New("invalid hex")
	// ErrDuplicateID is returned when two table entries share the same id
	ErrDuplicateID = errors.New("duplicate id")
	// ErrUnknownSendID is returned when a send id resolves to neither a script nor send data
	ErrUnknownSendID = errors.New("unknown send id")
	// ErrUnknownOutcome is returned when an outcome id is not registered
	ErrUnknownOutcome = errors.New("unknown outcome")
	// ErrUnknownScript is returned when an autosend script id is not registered
	ErrUnknownScript = errors.New("unknown script")
	// ErrJumpOutOfRange is returned when a jump step targets a missing step
	ErrJumpOutOfRange = errors.New("jump target out of range")
	// ErrEmptyScript is returned when a script has no steps
	ErrEmptyScript = errors.New("empty script")
	// ErrFieldReadOnly is returned when writing a fixed field
	ErrFieldReadOnly = errors.New("field is read only")
	// ErrFieldIndex is returned when a field or byte index is out of range
	ErrFieldIndex = errors.New("index out of range")
	// ErrQueueFull is returned when a request is dropped because the command queue is full
	ErrQueueFull = errors.New("queue full")
	// ErrSessionClosed is returned when using a session that is already closed
	ErrSessionClosed = errors.New("session closed")
	// ErrInvalidStateTransition is returned when an invalid state transition is attempted
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

// Status represents the current operational state of a session.
type Status int

const (
	// StatusIdle is the state of a session that has not started its I/O loop yet
	StatusIdle Status = iota
	// StatusRunning is the state while the I/O loop owns the transport
	StatusRunning
	// StatusClosed is the terminal state, the transport has been released
	StatusClosed
)

// String returns a human-readable string representation of the session status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusRunning:
		return "Running"
	case StatusClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Metrics contains runtime statistics of a session.
// All counters are cumulative totals since the session was created.
type Metrics struct {
	// Status is the current operational status of the session
	Status Status
	// RxBytes is the total number of bytes received from the transport
	RxBytes int
	// TxBytes is the total number of bytes written to the transport
	TxBytes int
	// Matches is the number of frames that matched an active outcome
	Matches int
	// Frames is the number of transmissions (manual and sequenced)
	Frames int
	// AnalyzeErrors is the number of analyzer hooks that returned an error
	AnalyzeErrors int
	// LastRxTime is the timestamp of the last received byte
	LastRxTime time.Time
	// LastTxTime is the timestamp of the last transmission
	LastTxTime time.Time
	// LastMatchTime is the timestamp of the last matched frame
	LastMatchTime time.Time
}
