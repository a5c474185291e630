package serdbg

import (
	"log/slog"
	"time"

	"github.com/jaracil/serdbg/internal/logging"
)

// DefaultIdleFlush is how long a partial RX line may stay open without new
// bytes before the monitor writes it out.
const DefaultIdleFlush = time.Second

// MonitorConfig contains the configuration parameters for creating a new monitor.
// Messenger and Sink are required, while other fields have reasonable defaults.
type MonitorConfig struct {
	// Messenger is the event source (required)
	Messenger *Messenger
	// Sink receives completed log records (required)
	Sink LogSink
	// Session is copied into every record
	Session string
	// Clock must be the clock of the session (default: monotonic clock)
	Clock Clock
	// IdleFlush is the idle time before a partial line is flushed (default: 1s)
	IdleFlush time.Duration
	// PollInterval is how often the idle timer is checked (default: 10ms)
	PollInterval time.Duration
	// OnEvent is an optional callback for events other than traffic
	OnEvent func(ev Event)
	// Logger receives sink failures (default: discard)
	Logger *slog.Logger
}

// Monitor is the controller side of a session. It turns the per-byte
// analysis events into log lines. A Monitor is driven by a single goroutine,
// normally the one calling Run.
type Monitor struct {
	msgr      *Messenger
	sink      LogSink
	session   string
	clock     Clock
	idleFlush time.Duration
	poll      time.Duration
	onEvent   func(ev Event)
	logger    *slog.Logger

	line     []byte
	lastPush int64
}

// NewMonitor creates a monitor. Call Run to start processing events.
func NewMonitor(config *MonitorConfig) (*Monitor, error) {
	if config == nil || config.Messenger == nil || config.Sink == nil {
		return nil, ErrConfigRequired
	}
	m := &Monitor{
		msgr:      config.Messenger,
		sink:      config.Sink,
		session:   config.Session,
		clock:     config.Clock,
		idleFlush: config.IdleFlush,
		poll:      config.PollInterval,
		onEvent:   config.OnEvent,
		logger:    config.Logger,
	}
	if m.clock == nil {
		m.clock = NewClock()
	}
	if m.idleFlush <= 0 {
		m.idleFlush = DefaultIdleFlush
	}
	if m.poll <= 0 {
		m.poll = 10 * time.Millisecond
	}
	if m.logger == nil {
		m.logger = logging.NewNop()
	}
	return m, nil
}

// Run processes events until the messenger exits. A pending line is flushed
// before returning.
func (m *Monitor) Run() {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		select {
		case ev := <-m.msgr.Events():
			m.Handle(ev)
		case <-ticker.C:
			m.FlushIdle(m.clock.Now())
		case <-m.msgr.Done():
			m.drain()
			m.flush("")
			return
		}
	}
}

func (m *Monitor) drain() {
	for {
		select {
		case ev := <-m.msgr.Events():
			m.Handle(ev)
		default:
			return
		}
	}
}

// Handle applies one event to the log assembler.
func (m *Monitor) Handle(ev Event) {
	switch ev.Kind {
	case EvtRx:
		r := ev.Rx
		if r.CommitPrevious {
			m.flush("")
		}
		if r.Push {
			m.line = append(m.line, r.Byte)
			m.lastPush = r.At
		}
		if r.CommitNow {
			m.flush(r.Detail)
		}
	case EvtTx:
		m.emit(LogRecord{Dir: DirTx, At: ev.At, Data: ev.Data, Detail: ev.SendID})
	default:
		if ev.Kind == EvtDisconnected {
			m.flush("")
		}
		if m.onEvent != nil {
			m.onEvent(ev)
		}
	}
}

// FlushIdle writes out the pending RX line when no byte was added to it for
// at least the idle flush time.
func (m *Monitor) FlushIdle(now int64) {
	if len(m.line) > 0 && time.Duration(now-m.lastPush) >= m.idleFlush {
		m.flush("")
	}
}

// Pending returns the bytes of the RX line being assembled.
func (m *Monitor) Pending() []byte {
	return m.line
}

func (m *Monitor) flush(detail string) {
	if len(m.line) == 0 {
		return
	}
	rec := LogRecord{Dir: DirRx, At: m.lastPush, Data: m.line, Detail: detail}
	m.line = nil
	m.emit(rec)
}

func (m *Monitor) emit(rec LogRecord) {
	rec.Session = m.session
	if err := m.sink.Log(rec); err != nil {
		m.logger.Warn("log sink failed", "session", m.session, "error", err)
	}
}
