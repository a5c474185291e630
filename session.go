package serdbg

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaracil/serdbg/internal/logging"
)

// Transport is the byte stream a session runs on. Read must return within
// a short timeout; a timeout is reported as (0, nil). Any error ends the
// session.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Flush() error
	Close() error
}

// StatusTransitionType defines a callback function that is called whenever the session
// changes state. It receives the session instance and both the previous and new status.
type StatusTransitionType func(s *Session, prevStatus Status, newStatus Status)

// SessionConfig contains the configuration parameters for creating a new session.
// Transport, Engine and Messenger are required, while other fields have reasonable defaults.
type SessionConfig struct {
	// Id is a unique identifier for the session (default: random UUID)
	Id string
	// Transport is the serial line or pty the session owns (required)
	Transport Transport
	// Engine holds the matcher, sequencer and tables (required)
	Engine *Engine
	// Messenger connects the session with the controller (required)
	Messenger *Messenger
	// Clock is the time source for matching and sequencing (default: monotonic clock)
	Clock Clock
	// TxDelay holds manual transmissions until the line has been quiet this long
	TxDelay time.Duration
	// AutoStart runs the table's enabled script when the session starts
	AutoStart bool
	// StatusTransition is an optional callback for status change notifications
	StatusTransition StatusTransitionType
	// Logger receives session diagnostics (default: discard)
	Logger *slog.Logger
}

// Session is the I/O side of the debugger. Its goroutine owns the transport
// and the engine: it reads one byte at a time, analyzes it, serves at most
// one queued command and ticks the sequencer on every iteration.
//
// The status and metrics are protected by the embedded mutex. Methods without
// the Sync suffix require the caller to hold the lock.
type Session struct {
	sync.Mutex
	st               Status
	id               string
	tr               Transport
	engine           *Engine
	msgr             *Messenger
	clock            Clock
	txDelay          time.Duration
	autoStart        bool
	statusTransition StatusTransitionType
	logger           *slog.Logger
	metrics          *Metrics
	done             chan struct{}

	held   *Command
	lastRx int64
	rxSeen bool
}

func (s *Session) checkLock() {
	if s.TryLock() {
		panic("Session lock not held")
	}
}

// Id returns the unique identifier of the session.
func (s *Session) Id() string {
	return s.id
}

func (s *Session) setStatus(status Status) {
	prevStatus := s.st
	if prevStatus == status {
		return
	}
	if prevStatus == StatusClosed {
		panic(ErrInvalidStateTransition)
	}
	s.st = status
	switch s.st {
	case StatusRunning:
		if prevStatus != StatusIdle {
			panic(ErrInvalidStateTransition)
		}
	case StatusClosed:
		if err := s.tr.Close(); err != nil {
			s.logger.Debug("transport close", "session", s.id, "error", err)
		}
	}
	if s.statusTransition != nil {
		s.statusTransition(s, prevStatus, status)
	}
}

func (s *Session) status() Status {
	return s.st
}

// Status returns the current operational status of the session.
// The session lock must be held before calling this method.
// Use StatusSync for automatic lock management.
func (s *Session) Status() Status {
	s.checkLock()
	return s.status()
}

// StatusSync returns the current operational status of the session with automatic lock management.
// This is a convenience method that acquires and releases the session lock.
func (s *Session) StatusSync() Status {
	s.Lock()
	defer s.Unlock()
	return s.status()
}

func (s *Session) close() {
	s.setStatus(StatusClosed)
}

// Close terminates the session and releases the transport.
// The session lock must be held before calling this method.
// Use CloseSync for automatic lock management.
func (s *Session) Close() {
	s.checkLock()
	s.close()
}

// CloseSync terminates the session and releases the transport with automatic lock management.
// This is a convenience method that acquires and releases the session lock.
func (s *Session) CloseSync() {
	s.Lock()
	defer s.Unlock()
	s.close()
}

// Metrics returns a snapshot of the session metrics.
// The session lock must be held before calling this method.
// Use MetricsSync for automatic lock management.
func (s *Session) Metrics() *Metrics {
	s.checkLock()
	copy := *s.metrics
	copy.Status = s.status()
	return &copy
}

// MetricsSync returns a snapshot of the session metrics with automatic lock management.
// This is a convenience method that acquires and releases the session lock.
func (s *Session) MetricsSync() *Metrics {
	s.Lock()
	defer s.Unlock()
	return s.Metrics()
}

// Done is closed when the I/O goroutine has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) post(ev Event) {
	if ev.At == 0 {
		ev.At = s.clock.Now()
	}
	s.msgr.Post(ev)
}

// fail ends the session after a transport error.
func (s *Session) fail(err error) {
	s.Lock()
	if s.status() != StatusClosed {
		s.setStatus(StatusClosed)
	}
	s.Unlock()
	s.logger.Error("session ended", "session", s.id, "error", err)
	s.post(Event{Kind: EvtDisconnected, Err: err})
}

func (s *Session) transmit(sendID string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := s.tr.Write(data)
	if err == nil && n < len(data) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	if err == nil {
		err = s.tr.Flush()
	}
	if err != nil {
		return fmt.Errorf("transmit %q: %w", sendID, err)
	}
	s.Lock()
	s.metrics.TxBytes += n
	s.metrics.Frames++
	s.metrics.LastTxTime = time.Now()
	s.Unlock()
	s.post(Event{Kind: EvtTx, SendID: sendID, Data: data})
	return nil
}

func (s *Session) receive(b byte, now int64) error {
	s.lastRx = now
	s.rxSeen = true
	res, resp := s.engine.Feed(b, now)

	s.Lock()
	s.metrics.RxBytes++
	s.metrics.LastRxTime = time.Now()
	if res.Matched() {
		s.metrics.Matches++
		s.metrics.LastMatchTime = s.metrics.LastRxTime
	}
	if res.AnalyzeErr != nil {
		s.metrics.AnalyzeErrors++
	}
	s.Unlock()

	if res.AnalyzeErr != nil {
		s.logger.Warn("analyze failed", "session", s.id, "outcome", res.OutcomeID, "error", res.AnalyzeErr)
	}
	s.post(Event{Kind: EvtRx, At: now, Rx: res})
	if err := s.transmit(res.ScriptID, resp); err != nil {
		return err
	}
	if res.RequestTransmit && resp == nil {
		s.scriptChanged()
	}
	return nil
}

func (s *Session) scriptChanged() {
	s.post(Event{Kind: EvtScript, Script: s.engine.Sequencer().Active()})
}

// command serves at most one queued command. A transmit request stays
// queued while the line has been quiet for less than the tx delay.
func (s *Session) command(now int64) error {
	if s.held == nil {
		select {
		case cmd := <-s.msgr.Commands():
			s.held = &cmd
		default:
			return nil
		}
	}
	cmd := *s.held
	if cmd.Kind == CmdTransmit && s.rxSeen && time.Duration(now-s.lastRx) < s.txDelay {
		return nil
	}
	s.held = nil

	var (
		forced []int
		err    error
	)
	switch cmd.Kind {
	case CmdTransmit:
		if cmd.SendID == "" {
			return s.transmit("", cmd.Data)
		}
		var data []byte
		data, err = s.engine.Transmit(cmd.SendID)
		if err == nil {
			if data != nil {
				return s.transmit(cmd.SendID, data)
			}
			s.scriptChanged()
			return nil
		}
	case CmdUpdateOutcome:
		forced, err = s.engine.UpdateOutcome(cmd.ID, cmd.Enabled, cmd.SendID)
	case CmdUpdateOutcomes:
		forced, err = s.engine.UpdateOutcomes(cmd.Updates)
	case CmdSetField:
		err = s.engine.SetSendField(cmd.SendID, cmd.Field, cmd.Text)
	case CmdStartScript:
		err = s.engine.StartScript(cmd.ID)
	case CmdStopScript:
		s.engine.StopScript()
	case CmdApply:
		if cmd.Apply != nil {
			err = cmd.Apply(s.engine)
		}
	}
	if err != nil {
		s.logger.Warn("command failed", "session", s.id, "command", cmd.Kind.String(), "error", err)
	}
	s.post(Event{Kind: EvtUpdateApplied, Command: cmd.Kind, Forced: forced, Err: err})
	if cmd.Kind == CmdStartScript || cmd.Kind == CmdStopScript {
		s.scriptChanged()
	}
	return nil
}

func (s *Session) tick(now int64) error {
	res, err := s.engine.Tick(now)
	if err != nil {
		s.logger.Warn("script step failed", "session", s.id, "error", err)
	}
	if err := s.transmit(res.Sent, res.Data); err != nil {
		return err
	}
	if res.Stopped {
		s.post(Event{Kind: EvtScript})
	}
	return nil
}

func (s *Session) ioTask() {
	defer close(s.done)
	byteBuff := make([]byte, 1)

	s.Lock()
	if s.status() == StatusClosed {
		s.Unlock()
		s.post(Event{Kind: EvtDisconnected})
		return
	}
	s.setStatus(StatusRunning)
	s.Unlock()

	s.engine.Reset()
	if s.autoStart {
		if id := s.engine.AutoStart(); id != "" {
			s.logger.Info("autosend started", "session", s.id, "script", id)
			s.post(Event{Kind: EvtScript, Script: id})
		}
	}

	for {
		select {
		case <-s.msgr.Done():
			s.Lock()
			if s.status() != StatusClosed {
				s.setStatus(StatusClosed)
			}
			s.Unlock()
			return
		default:
		}

		n, err := s.tr.Read(byteBuff)
		if s.StatusSync() == StatusClosed {
			s.post(Event{Kind: EvtDisconnected})
			return
		}
		if err != nil {
			s.fail(err)
			return
		}
		now := s.clock.Now()
		if n > 0 {
			if err := s.receive(byteBuff[0], now); err != nil {
				s.fail(err)
				return
			}
		}
		if err := s.command(now); err != nil {
			s.fail(err)
			return
		}
		if err := s.tick(now); err != nil {
			s.fail(err)
			return
		}
	}
}

// NewSession creates a session and starts its I/O goroutine.
func NewSession(config *SessionConfig) (*Session, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}

	if config.Transport == nil || config.Engine == nil || config.Messenger == nil {
		return nil, ErrConfigRequired
	}

	s := &Session{
		st:               StatusIdle,
		id:               config.Id,
		tr:               config.Transport,
		engine:           config.Engine,
		msgr:             config.Messenger,
		clock:            config.Clock,
		txDelay:          config.TxDelay,
		autoStart:        config.AutoStart,
		statusTransition: config.StatusTransition,
		logger:           config.Logger,
		metrics:          &Metrics{},
		done:             make(chan struct{}),
	}

	if s.id == "" {
		s.id = uuid.NewString()
	}

	if s.clock == nil {
		s.clock = NewClock()
	}

	if s.logger == nil {
		s.logger = logging.NewNop()
	}

	go s.ioTask()
	return s, nil
}
