package serdbg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustScript(t *testing.T, id string, steps ...Step) *Script {
	t.Helper()
	sc, err := NewScript(id, false, steps...)
	require.NoError(t, err)
	return sc
}

func tickSent(t *testing.T, seq *Sequencer, now int64) string {
	t.Helper()
	res, err := seq.Tick(now)
	require.NoError(t, err)
	return res.Sent
}

func TestSequencer_Idle(t *testing.T) {
	seq := NewSequencer(testSends(t, "a"))
	res, err := seq.Tick(0)
	require.NoError(t, err)
	assert.Equal(t, TickResult{}, res)
	assert.Empty(t, seq.Active())
}

func TestSequencer_LoopsWithoutExit(t *testing.T) {
	seq := NewSequencer(testSends(t, "a", "b"))
	seq.Start(mustScript(t, "loop", SendStep("a"), SendStep("b")))

	var sent []string
	for i := 0; i < 5; i++ {
		sent = append(sent, tickSent(t, seq, int64(i)))
	}
	assert.Equal(t, []string{"a", "b", "a", "b", "a"}, sent)
	assert.Equal(t, "loop", seq.Active())
}

func TestSequencer_SendPayload(t *testing.T) {
	seq := NewSequencer(testSends(t, "a", "b"))
	seq.Start(mustScript(t, "one", SendStep("b")))

	res, err := seq.Tick(0)
	require.NoError(t, err)
	assert.Equal(t, "b", res.Sent)
	assert.Equal(t, []byte{0x02}, res.Data)
}

func TestSequencer_Wait(t *testing.T) {
	clock := &ManualClock{}
	seq := NewSequencer(testSends(t, "a"))
	seq.Start(mustScript(t, "slow", SendStep("a"), WaitStep(100*time.Millisecond)))

	assert.Equal(t, "a", tickSent(t, seq, clock.Now()))

	// the wait is armed by its first tick
	clock.Advance(time.Second)
	res, err := seq.Tick(clock.Now())
	require.NoError(t, err)
	assert.True(t, res.Waiting)
	assert.Equal(t, 1, seq.Cursor())

	clock.Advance(99 * time.Millisecond)
	res, _ = seq.Tick(clock.Now())
	assert.True(t, res.Waiting)

	clock.Advance(time.Millisecond)
	res, _ = seq.Tick(clock.Now())
	assert.False(t, res.Waiting)
	assert.Empty(t, res.Sent)
	assert.Equal(t, 0, seq.Cursor())

	assert.Equal(t, "a", tickSent(t, seq, clock.Now()))
}

func TestSequencer_Jump(t *testing.T) {
	seq := NewSequencer(testSends(t, "a", "b", "c"))
	seq.Start(mustScript(t, "j", SendStep("a"), SendStep("b"), JumpStep(1), SendStep("c")))

	var sent []string
	for i := 0; i < 7; i++ {
		if s := tickSent(t, seq, 0); s != "" {
			sent = append(sent, s)
		}
	}
	assert.Equal(t, []string{"a", "b", "b", "b"}, sent)
}

func TestSequencer_Exit(t *testing.T) {
	seq := NewSequencer(testSends(t, "a"))
	sc := mustScript(t, "once", SendStep("a"), ExitStep(), SendStep("a"))
	seq.Start(sc)
	assert.True(t, sc.Enabled)

	assert.Equal(t, "a", tickSent(t, seq, 0))
	res, err := seq.Tick(0)
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Empty(t, seq.Active())
	assert.False(t, sc.Enabled)

	res, _ = seq.Tick(0)
	assert.Equal(t, TickResult{}, res)
}

func TestSequencer_StartPreempts(t *testing.T) {
	seq := NewSequencer(testSends(t, "a", "b"))
	first := mustScript(t, "first", SendStep("a"), SendStep("a"))
	second := mustScript(t, "second", SendStep("b"))

	seq.Start(first)
	tickSent(t, seq, 0)
	seq.Start(second)
	assert.False(t, first.Enabled)
	assert.True(t, second.Enabled)
	assert.Equal(t, 0, seq.Cursor())
	assert.Equal(t, "b", tickSent(t, seq, 0))

	seq.Stop()
	assert.False(t, second.Enabled)
	assert.Empty(t, seq.Active())
}

type failingSource struct{}

func (failingSource) SendBytes(id string) ([]byte, error) {
	return nil, ErrUnknownSendID
}

func TestSequencer_SendErrorStops(t *testing.T) {
	seq := NewSequencer(failingSource{})
	seq.Start(mustScript(t, "broken", SendStep("a")))

	res, err := seq.Tick(0)
	assert.ErrorIs(t, err, ErrUnknownSendID)
	assert.True(t, res.Stopped)
	assert.Empty(t, seq.Active())
}
