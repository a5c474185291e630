package serdbg

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jaracil/serdbg/internal/logging"
)

// DefaultQueueSize is the capacity of the command and event queues.
const DefaultQueueSize = 10

// CommandKind identifies a request sent to the I/O goroutine.
type CommandKind int

const (
	// CmdTransmit sends SendID (or raw Data when SendID is empty)
	CmdTransmit CommandKind = iota
	// CmdUpdateOutcome changes one outcome
	CmdUpdateOutcome
	// CmdUpdateOutcomes changes several outcomes at once
	CmdUpdateOutcomes
	// CmdSetField sets a send data field from text
	CmdSetField
	// CmdStartScript starts an autosend script
	CmdStartScript
	// CmdStopScript stops the running script
	CmdStopScript
	// CmdApply runs an arbitrary function against the engine
	CmdApply
)

// String returns a human-readable string representation of the command kind.
func (k CommandKind) String() string {
	switch k {
	case CmdTransmit:
		return "Transmit"
	case CmdUpdateOutcome:
		return "UpdateOutcome"
	case CmdUpdateOutcomes:
		return "UpdateOutcomes"
	case CmdSetField:
		return "SetField"
	case CmdStartScript:
		return "StartScript"
	case CmdStopScript:
		return "StopScript"
	case CmdApply:
		return "Apply"
	default:
		return "Unknown"
	}
}

// Command is a request for the I/O goroutine. Only the fields relevant to
// Kind are used.
type Command struct {
	Kind    CommandKind
	SendID  string
	Data    []byte
	ID      string
	Enabled bool
	Updates []OutcomeUpdate
	Field   int
	Text    string
	Apply   func(e *Engine) error
}

// EventKind identifies a notification posted by the I/O goroutine.
type EventKind int

const (
	// EvtRx carries the analysis of one received byte
	EvtRx EventKind = iota
	// EvtTx reports a completed transmission
	EvtTx
	// EvtDisconnected reports the end of the session
	EvtDisconnected
	// EvtUpdateApplied acknowledges a command that changes the tables
	EvtUpdateApplied
	// EvtScript reports that the running script changed
	EvtScript
)

// String returns a human-readable string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EvtRx:
		return "Rx"
	case EvtTx:
		return "Tx"
	case EvtDisconnected:
		return "Disconnected"
	case EvtUpdateApplied:
		return "UpdateApplied"
	case EvtScript:
		return "Script"
	default:
		return "Unknown"
	}
}

// Event is a notification for the controller goroutine.
type Event struct {
	Kind EventKind
	// At is the clock time of the event in nanoseconds
	At int64
	// Rx is set for EvtRx
	Rx AnalyzeResult
	// SendID names the transmitted data for EvtTx, empty for raw data
	SendID string
	// Data is the transmitted payload for EvtTx
	Data []byte
	// Command is the acknowledged command kind for EvtUpdateApplied
	Command CommandKind
	// Forced lists outcome indices disabled by an update
	Forced []int
	// Script is the running script id for EvtScript, empty when stopped
	Script string
	// Err carries the failure of an update or the disconnect cause
	Err error
}

// Messenger connects the controller side with the I/O goroutine through two
// bounded queues and an exit signal. Requests never block: when the command
// queue is full they are dropped. Events are delivered in order and the I/O
// goroutine waits for room unless the messenger is exiting.
type Messenger struct {
	cmds     chan Command
	events   chan Event
	exit     chan struct{}
	exitOnce sync.Once
	dropped  atomic.Int64
	logger   *slog.Logger
}

// NewMessenger returns a messenger whose queues hold size entries. A size
// below one uses DefaultQueueSize. A nil logger discards warnings.
func NewMessenger(size int, logger *slog.Logger) *Messenger {
	if size < 1 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Messenger{
		cmds:   make(chan Command, size),
		events: make(chan Event, size),
		exit:   make(chan struct{}),
		logger: logger,
	}
}

// Request queues cmd for the I/O goroutine. It returns ErrQueueFull when the
// command was dropped and ErrSessionClosed after Exit.
func (m *Messenger) Request(cmd Command) error {
	select {
	case <-m.exit:
		return ErrSessionClosed
	default:
	}
	select {
	case m.cmds <- cmd:
		return nil
	default:
		m.dropped.Add(1)
		m.logger.Warn("command queue full, request dropped", "command", cmd.Kind.String())
		return fmt.Errorf("%w: %s", ErrQueueFull, cmd.Kind)
	}
}

// Transmit requests the transmission of a send id.
func (m *Messenger) Transmit(sendID string) error {
	return m.Request(Command{Kind: CmdTransmit, SendID: sendID})
}

// TransmitRaw requests the transmission of literal bytes.
func (m *Messenger) TransmitRaw(data []byte) error {
	return m.Request(Command{Kind: CmdTransmit, Data: append([]byte(nil), data...)})
}

// UpdateOutcome requests an outcome change.
func (m *Messenger) UpdateOutcome(id string, enabled bool, sendID string) error {
	return m.Request(Command{Kind: CmdUpdateOutcome, ID: id, Enabled: enabled, SendID: sendID})
}

// UpdateOutcomes requests a batch outcome change.
func (m *Messenger) UpdateOutcomes(updates []OutcomeUpdate) error {
	return m.Request(Command{Kind: CmdUpdateOutcomes, Updates: append([]OutcomeUpdate(nil), updates...)})
}

// SetField requests a send data field change.
func (m *Messenger) SetField(sendID string, field int, text string) error {
	return m.Request(Command{Kind: CmdSetField, SendID: sendID, Field: field, Text: text})
}

// StartScript requests a script start.
func (m *Messenger) StartScript(id string) error {
	return m.Request(Command{Kind: CmdStartScript, ID: id})
}

// StopScript requests the running script to stop.
func (m *Messenger) StopScript() error {
	return m.Request(Command{Kind: CmdStopScript})
}

// Apply requests fn to run on the I/O goroutine with exclusive access to the
// engine.
func (m *Messenger) Apply(fn func(e *Engine) error) error {
	return m.Request(Command{Kind: CmdApply, Apply: fn})
}

// Commands is the receive side of the command queue.
func (m *Messenger) Commands() <-chan Command {
	return m.cmds
}

// Events is the receive side of the event queue.
func (m *Messenger) Events() <-chan Event {
	return m.events
}

// Post delivers ev, waiting for room in the event queue. It returns false
// without delivering when the messenger is exiting.
func (m *Messenger) Post(ev Event) bool {
	select {
	case <-m.exit:
		return false
	default:
	}
	select {
	case m.events <- ev:
		return true
	case <-m.exit:
		return false
	}
}

// Exit signals every side to stop. It is safe to call more than once.
func (m *Messenger) Exit() {
	m.exitOnce.Do(func() {
		close(m.exit)
	})
}

// Done is closed once Exit has been called.
func (m *Messenger) Done() <-chan struct{} {
	return m.exit
}

// Dropped returns the number of requests lost to a full queue.
func (m *Messenger) Dropped() int64 {
	return m.dropped.Load()
}
