package serdbg

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSink struct {
	mu      sync.Mutex
	records []LogRecord
}

func (s *recordSink) Log(rec LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Data = append([]byte(nil), rec.Data...)
	s.records = append(s.records, rec)
	return nil
}

func (s *recordSink) all() []LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogRecord(nil), s.records...)
}

func newTestMonitor(t *testing.T, sink LogSink) *Monitor {
	t.Helper()
	m, err := NewMonitor(&MonitorConfig{
		Messenger: NewMessenger(0, nil),
		Sink:      sink,
		Session:   "s1",
		IdleFlush: time.Second,
	})
	require.NoError(t, err)
	return m
}

func TestNewMonitor_Validation(t *testing.T) {
	_, err := NewMonitor(nil)
	assert.ErrorIs(t, err, ErrConfigRequired)
	_, err = NewMonitor(&MonitorConfig{Messenger: NewMessenger(0, nil)})
	assert.ErrorIs(t, err, ErrConfigRequired)
}

func TestMonitor_Golden(t *testing.T) {
	var buf bytes.Buffer
	mon := newTestMonitor(t, NewWriterSink(&buf))
	e := buildTestEngine(t)

	rx := func(b byte, at time.Duration) {
		res, _ := e.Feed(b, int64(at))
		mon.Handle(Event{Kind: EvtRx, At: int64(at), Rx: res})
	}

	rx(0x55, time.Second)
	rx(0xA0, 1250*time.Millisecond)
	rx(0x7E, 1250100*time.Microsecond)
	rx(0x03, 1250200*time.Microsecond)
	mon.Handle(Event{Kind: EvtTx, At: int64(1250300 * time.Microsecond), SendID: "ack", Data: []byte{0x06, 0x7E}})
	rx(0x01, 2*time.Second)
	rx(0xA1, 3*time.Second)
	rx(0x00, 3000100*time.Microsecond)
	rx(0xA0, 4*time.Second)
	mon.Handle(Event{Kind: EvtDisconnected})

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "monitor_log", buf.Bytes())
}

func TestMonitor_FlushIdle(t *testing.T) {
	sink := &recordSink{}
	mon := newTestMonitor(t, sink)

	mon.Handle(Event{Kind: EvtRx, Rx: AnalyzeResult{Byte: 0xA0, At: int64(time.Second), Push: true}})
	assert.Equal(t, []byte{0xA0}, mon.Pending())

	mon.FlushIdle(int64(1500 * time.Millisecond))
	assert.Empty(t, sink.all())

	mon.FlushIdle(int64(2 * time.Second))
	recs := sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, LogRecord{Session: "s1", Dir: DirRx, At: int64(time.Second), Data: []byte{0xA0}}, recs[0])
	assert.Empty(t, mon.Pending())

	// nothing pending, nothing written
	mon.FlushIdle(int64(10 * time.Second))
	assert.Len(t, sink.all(), 1)
}

func TestMonitor_CommitPrevious(t *testing.T) {
	sink := &recordSink{}
	mon := newTestMonitor(t, sink)

	mon.Handle(Event{Kind: EvtRx, Rx: AnalyzeResult{Byte: 0x01, At: 1, Push: true}})
	mon.Handle(Event{Kind: EvtRx, Rx: AnalyzeResult{Byte: 0x02, At: 2, CommitPrevious: true, Push: true, CommitNow: true, Detail: "x"}})

	recs := sink.all()
	require.Len(t, recs, 2)
	assert.Equal(t, []byte{0x01}, recs[0].Data)
	assert.Empty(t, recs[0].Detail)
	assert.Equal(t, []byte{0x02}, recs[1].Data)
	assert.Equal(t, "x", recs[1].Detail)
	assert.Equal(t, int64(2), recs[1].At)
}

func TestMonitor_OnEvent(t *testing.T) {
	var seen []EventKind
	mon, err := NewMonitor(&MonitorConfig{
		Messenger: NewMessenger(0, nil),
		Sink:      &recordSink{},
		OnEvent:   func(ev Event) { seen = append(seen, ev.Kind) },
	})
	require.NoError(t, err)

	mon.Handle(Event{Kind: EvtRx, Rx: AnalyzeResult{Push: true}})
	mon.Handle(Event{Kind: EvtScript, Script: "cycle"})
	mon.Handle(Event{Kind: EvtUpdateApplied})
	mon.Handle(Event{Kind: EvtDisconnected})
	assert.Equal(t, []EventKind{EvtScript, EvtUpdateApplied, EvtDisconnected}, seen)
}

func TestMonitor_SinkErrorIsNotFatal(t *testing.T) {
	calls := 0
	mon := newTestMonitor(t, LogSinkFunc(func(rec LogRecord) error {
		calls++
		return errors.New("disk full")
	}))

	mon.Handle(Event{Kind: EvtTx, Data: []byte{0x01}})
	mon.Handle(Event{Kind: EvtTx, Data: []byte{0x02}})
	assert.Equal(t, 2, calls)
}

func TestMonitor_Run(t *testing.T) {
	sink := &recordSink{}
	msgr := NewMessenger(0, nil)
	mon, err := NewMonitor(&MonitorConfig{Messenger: msgr, Sink: sink, PollInterval: time.Millisecond})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		mon.Run()
	}()

	require.True(t, msgr.Post(Event{Kind: EvtTx, SendID: "poll", Data: []byte{0x01}}))
	require.True(t, msgr.Post(Event{Kind: EvtRx, Rx: AnalyzeResult{Byte: 0xAA, Push: true}}))
	msgr.Exit()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}

	recs := sink.all()
	require.Len(t, recs, 2)
	assert.Equal(t, DirTx, recs[0].Dir)
	assert.Equal(t, "poll", recs[0].Detail)
	assert.Equal(t, DirRx, recs[1].Dir)
	assert.Equal(t, []byte{0xAA}, recs[1].Data)
}
