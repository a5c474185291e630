package capture

import (
	"path/filepath"
	"testing"

	"github.com/jaracil/serdbg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRecords(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	recs := []serdbg.LogRecord{
		{Session: "s1", Dir: serdbg.DirRx, At: 1000, Data: []byte{0x00, 0x01, 0xFF}, Detail: "ack"},
		{Session: "s1", Dir: serdbg.DirTx, At: 2000, Data: []byte{0x06}, Detail: "reply"},
		{Session: "s2", Dir: serdbg.DirRx, At: 3000, Data: []byte{0xAA}},
	}
	for _, rec := range recs {
		require.NoError(t, store.Log(rec))
	}

	got, err := store.Records("s1")
	require.NoError(t, err)
	assert.Equal(t, recs[:2], got)

	sessions, err := store.Sessions()
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, sessions)

	none, err := store.Records("missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Log(serdbg.LogRecord{Session: "s", Dir: serdbg.DirTx, At: 5, Data: []byte{1, 2}}))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Records("s")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte{1, 2}, got[0].Data)
	assert.Equal(t, serdbg.DirTx, got[0].Dir)
}

func TestStoreAsMonitorSink(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	msgr := serdbg.NewMessenger(serdbg.DefaultQueueSize, nil)
	mon, err := serdbg.NewMonitor(&serdbg.MonitorConfig{Messenger: msgr, Sink: store, Session: "run"})
	require.NoError(t, err)

	mon.Handle(serdbg.Event{Kind: serdbg.EvtRx, Rx: serdbg.AnalyzeResult{Byte: 0x10, At: 1, Push: true}})
	mon.Handle(serdbg.Event{Kind: serdbg.EvtRx, Rx: serdbg.AnalyzeResult{Byte: 0x20, At: 2, Push: true, CommitNow: true, Detail: "hit"}})

	got, err := store.Records("run")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte{0x10, 0x20}, got[0].Data)
	assert.Equal(t, "hit", got[0].Detail)
	assert.Equal(t, int64(2), got[0].At)
}
