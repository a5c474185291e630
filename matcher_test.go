package serdbg

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandle struct {
	writes  map[int]byte
	changed string
	err     error
}

func (h *recordingHandle) SetSendByte(sendID string, pos int, v byte) error {
	if h.err != nil {
		return h.err
	}
	if h.writes == nil {
		h.writes = make(map[int]byte)
	}
	h.writes[pos] = v
	return nil
}

func (h *recordingHandle) ChangeScript(sendID string) error {
	h.changed = sendID
	return nil
}

func newTestMatcher(t *testing.T, defs ...PatternDef) *Matcher {
	t.Helper()
	m, forced, err := NewMatcher(defs, nil)
	require.NoError(t, err)
	require.Empty(t, forced)
	return m
}

func feed(m *Matcher, data ...byte) []AnalyzeResult {
	res := make([]AnalyzeResult, len(data))
	for i, b := range data {
		res[i] = m.Consume(b, int64(i))
	}
	return res
}

func transitions(res []AnalyzeResult) []Transition {
	out := make([]Transition, len(res))
	for i, r := range res {
		out[i] = r.Transition
	}
	return out
}

func TestTransition_String(t *testing.T) {
	assert.Equal(t, "OK->OK", OKToOK.String())
	assert.Equal(t, "OK->NG", OKToNG.String())
	assert.Equal(t, "NG->OK", NGToOK.String())
	assert.Equal(t, "NG->NG", NGToNG.String())
	assert.Equal(t, "Unknown", Transition(9).String())
}

func TestNewMatcher_Validation(t *testing.T) {
	tests := []struct {
		name    string
		defs    []PatternDef
		wantErr error
	}{
		{"missing id", []PatternDef{{Pattern: Hex("01")}}, ErrConfigRequired},
		{"empty pattern", []PatternDef{{ID: "a"}}, ErrInvalidPattern},
		{"duplicate id", []PatternDef{{ID: "a", Pattern: Hex("01")}, {ID: "a", Pattern: Hex("02")}}, ErrDuplicateID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewMatcher(tt.defs, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

type knownSet map[string]bool

func (k knownSet) Known(id string) bool { return k[id] }

func TestNewMatcher_UnknownSendID(t *testing.T) {
	_, _, err := NewMatcher([]PatternDef{{ID: "a", Pattern: Hex("01"), SendID: "nope"}}, knownSet{"poll": true})
	assert.ErrorIs(t, err, ErrUnknownSendID)

	_, _, err = NewMatcher([]PatternDef{{ID: "a", Pattern: Hex("01"), SendID: "poll"}}, knownSet{"poll": true})
	assert.NoError(t, err)
}

func TestMatcher_FullMatch(t *testing.T) {
	m := newTestMatcher(t, PatternDef{ID: "ack", Pattern: Hex("010203"), Enabled: true, SendID: "reply"})

	res := feed(m, 0x01, 0x02, 0x03)
	assert.Equal(t, []Transition{OKToOK, OKToOK, OKToOK}, transitions(res))
	for _, r := range res[:2] {
		assert.True(t, r.Push)
		assert.False(t, r.CommitNow)
		assert.False(t, r.RequestTransmit)
	}
	last := res[2]
	assert.True(t, last.Push)
	assert.True(t, last.CommitNow)
	assert.True(t, last.RequestTransmit)
	assert.True(t, last.Matched())
	assert.Equal(t, "ack", last.OutcomeID)
	assert.Equal(t, "reply", last.ScriptID)
	assert.Equal(t, "ack", last.Detail)
	assert.Empty(t, m.Pending())
}

func TestMatcher_NoResponse(t *testing.T) {
	m := newTestMatcher(t, PatternDef{ID: "seen", Pattern: Hex("AA"), Enabled: true})

	r := m.Consume(0xAA, 0)
	assert.True(t, r.Matched())
	assert.True(t, r.CommitNow)
	assert.False(t, r.RequestTransmit)
	assert.Empty(t, r.ScriptID)
}

func TestMatcher_TransitionSequence(t *testing.T) {
	m := newTestMatcher(t, PatternDef{ID: "x", Pattern: Hex("010203"), Enabled: true, SendID: "s"})

	res := feed(m, 0x01, 0x05, 0x07, 0x01, 0x02, 0x03)
	assert.Equal(t, []Transition{OKToOK, OKToNG, NGToNG, NGToOK, OKToOK, OKToOK}, transitions(res))

	// a failing byte is a line of its own
	for _, r := range res[1:3] {
		assert.True(t, r.Push)
		assert.True(t, r.CommitNow)
		assert.False(t, r.Resync)
	}
	assert.True(t, res[3].CommitPrevious)
	assert.False(t, res[3].CommitNow)
	assert.True(t, res[5].RequestTransmit)
	assert.Equal(t, "s", res[5].ScriptID)
}

func TestMatcher_Resync(t *testing.T) {
	m := newTestMatcher(t, PatternDef{ID: "x", Pattern: Hex("010203"), Enabled: true, SendID: "s"})

	res := feed(m, 0x01, 0x02, 0x01, 0x02, 0x03)
	r := res[2]
	assert.Equal(t, OKToNG, r.Transition)
	assert.True(t, r.Resync)
	assert.True(t, r.CommitPrevious)
	assert.True(t, r.Push)
	assert.False(t, r.CommitNow)

	assert.Equal(t, OKToOK, res[3].Transition)
	assert.True(t, res[4].Matched())
}

func TestMatcher_ResyncOnlyOneByte(t *testing.T) {
	// the retry is made with the failing byte only; earlier bytes are not
	// rescanned
	m := newTestMatcher(t, PatternDef{ID: "x", Pattern: Hex("0101020304"), Enabled: true})

	res := feed(m, 0x01, 0x01, 0x01, 0x02, 0x03, 0x04)
	assert.True(t, res[2].Resync)
	for _, r := range res {
		assert.False(t, r.Matched())
	}
}

func TestMatcher_WildcardPrecedence(t *testing.T) {
	m := newTestMatcher(t,
		PatternDef{ID: "wild", Pattern: Hex("00 ** 02"), Enabled: true},
		PatternDef{ID: "exact", Pattern: Hex("00 01 **"), Enabled: true},
	)

	res := feed(m, 0x00, 0x01, 0x02)
	assert.Equal(t, "exact", res[2].OutcomeID)

	res = feed(m, 0x00, 0x05, 0x02)
	assert.Equal(t, "wild", res[2].OutcomeID)
}

func TestMatcher_LiteralTables(t *testing.T) {
	t.Run("resync after garbage", func(t *testing.T) {
		var frame []byte
		m := newTestMatcher(t, PatternDef{ID: "x", Pattern: Hex("00 01 **"), Enabled: true,
			Formatter: LogFormatterFunc(func(f []byte) string {
				frame = f
				return ""
			})})

		res := feed(m, 0xAA, 0xBB, 0x00, 0x01, 0xFF)
		assert.Equal(t, []Transition{OKToNG, NGToNG, NGToOK, OKToOK, OKToOK}, transitions(res))
		for _, r := range res[:2] {
			assert.True(t, r.CommitNow)
			assert.False(t, r.Matched())
		}
		assert.True(t, res[2].CommitPrevious)
		assert.Equal(t, "x", res[4].OutcomeID)
		assert.Equal(t, []byte{0x00, 0x01, 0xFF}, frame)
	})

	t.Run("exact byte beats wildcard", func(t *testing.T) {
		m := newTestMatcher(t,
			PatternDef{ID: "wild", Pattern: Hex("00 ** 02"), Enabled: true},
			PatternDef{ID: "exact", Pattern: Hex("00 FF 02"), Enabled: true},
		)

		res := feed(m, 0x00, 0xFF, 0x02)
		assert.Equal(t, "exact", res[2].OutcomeID)

		res = feed(m, 0x00, 0xFE, 0x02)
		assert.Equal(t, "wild", res[2].OutcomeID)
	})
}

func TestMatcher_HooksMayKeepFrame(t *testing.T) {
	var analyzed, formatted [][]byte
	keep := AnalyzerFunc(func(frame []byte, h AnalyzeHandle) error {
		analyzed = append(analyzed, frame)
		return nil
	})
	format := LogFormatterFunc(func(frame []byte) string {
		formatted = append(formatted, frame)
		return ""
	})
	m := newTestMatcher(t,
		PatternDef{ID: "ab", Pattern: Hex("AA BB"), Enabled: true, Analyzer: keep, Formatter: format},
		PatternDef{ID: "cd", Pattern: Hex("CC DD"), Enabled: true, Analyzer: keep, Formatter: format},
	)
	m.Bind(&recordingHandle{})

	feed(m, 0xAA, 0xBB, 0xCC, 0xDD)
	want := [][]byte{{0xAA, 0xBB}, {0xCC, 0xDD}}
	assert.Equal(t, want, analyzed)
	assert.Equal(t, want, formatted)

	m.Consume(0x11, 0)
	m.Consume(0xAA, 1)
	pending := m.Pending()
	assert.Equal(t, []byte{0xAA}, pending)
	m.Reset()
	m.Consume(0xCC, 2)
	assert.Equal(t, []byte{0xAA}, pending)
	assert.Equal(t, []byte{0xCC}, m.Pending())
}

func TestMatcher_TailBeforeLeaf(t *testing.T) {
	m := newTestMatcher(t,
		PatternDef{ID: "short", Pattern: Hex("0102"), Enabled: true},
		PatternDef{ID: "long", Pattern: Hex("010203"), Enabled: true},
	)

	res := feed(m, 0x01, 0x02, 0x03)
	assert.Equal(t, "short", res[1].OutcomeID)
	assert.True(t, res[1].CommitNow)
	assert.Equal(t, "long", res[2].OutcomeID)
	assert.Equal(t, OKToOK, res[2].Transition)
}

func TestMatcher_DisabledTail(t *testing.T) {
	m := newTestMatcher(t, PatternDef{ID: "off", Pattern: Hex("0102"), SendID: "s"})

	res := feed(m, 0x01, 0x02)
	assert.True(t, res[1].CommitNow)
	assert.False(t, res[1].Matched())
	assert.False(t, res[1].RequestTransmit)
	assert.Empty(t, res[1].Detail)
}

func TestMatcher_FormatterAndAnalyzer(t *testing.T) {
	h := &recordingHandle{}
	m := newTestMatcher(t, PatternDef{
		ID:        "status",
		Pattern:   Hex("A0 ** 03"),
		Enabled:   true,
		SendID:    "ack",
		Analyzer:  CopyAnalyzer{SendID: "ack", From: 1, To: 4, Len: 1},
		Formatter: FieldFormatter{Label: "seq", Offset: 1},
	})
	m.Bind(h)

	res := feed(m, 0xA0, 0x7E, 0x03)
	assert.Equal(t, "status: seq=0x7E", res[2].Detail)
	assert.NoError(t, res[2].AnalyzeErr)
	assert.Equal(t, map[int]byte{4: 0x7E}, h.writes)

	h.err = errors.New("boom")
	res = feed(m, 0xA0, 0x01, 0x03)
	assert.Error(t, res[2].AnalyzeErr)
	assert.Equal(t, "status", res[2].OutcomeID)
}

func TestMatcher_EmptyFormatterKeepsID(t *testing.T) {
	m := newTestMatcher(t, PatternDef{
		ID:        "short",
		Pattern:   Hex("01"),
		Enabled:   true,
		Formatter: FieldFormatter{Label: "x", Offset: 4},
	})
	assert.Equal(t, "short", m.Consume(0x01, 0).Detail)
}

func TestMatcher_Reset(t *testing.T) {
	m := newTestMatcher(t, PatternDef{ID: "x", Pattern: Hex("0102"), Enabled: true})

	feed(m, 0x01)
	assert.Equal(t, []byte{0x01}, m.Pending())
	m.Reset()
	assert.Empty(t, m.Pending())

	r := m.Consume(0x02, 0)
	assert.Equal(t, OKToNG, r.Transition)
}

func TestMatcher_SingleActiveOutcome(t *testing.T) {
	m, forced, err := NewMatcher([]PatternDef{
		{ID: "a", Pattern: Hex("0102"), Enabled: true, SendID: "x"},
		{ID: "b", Pattern: Hex("0102"), Enabled: true, SendID: "y"},
		{ID: "c", Pattern: Hex("0102")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, forced)

	o, ok := m.Outcome("b")
	require.True(t, ok)
	assert.False(t, o.Enabled)

	forced, err = m.UpdateOutcome("c", true, "z")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, forced)

	states := m.Outcomes()
	require.Len(t, states, 3)
	assert.False(t, states[0].Enabled)
	assert.True(t, states[2].Active)
	assert.Equal(t, "01 02", states[2].Pattern)

	res := feed(m, 0x01, 0x02)
	assert.Equal(t, "c", res[1].OutcomeID)
	assert.Equal(t, "z", res[1].ScriptID)

	forced, err = m.UpdateOutcome("c", false, "z")
	require.NoError(t, err)
	assert.Empty(t, forced)
	res = feed(m, 0x01, 0x02)
	assert.False(t, res[1].Matched())
}

func TestMatcher_UpdateOutcomeErrors(t *testing.T) {
	m, _, err := NewMatcher([]PatternDef{{ID: "a", Pattern: Hex("01")}}, knownSet{"s": true})
	require.NoError(t, err)

	_, err = m.UpdateOutcome("nope", true, "")
	assert.ErrorIs(t, err, ErrUnknownOutcome)
	_, err = m.UpdateOutcome("a", true, "missing")
	assert.ErrorIs(t, err, ErrUnknownSendID)

	o, _ := m.Outcome("a")
	assert.False(t, o.Enabled)
}

func TestMatcher_UpdateOutcomes(t *testing.T) {
	m, _, err := NewMatcher([]PatternDef{
		{ID: "a", Pattern: Hex("01")},
		{ID: "b", Pattern: Hex("01")},
		{ID: "c", Pattern: Hex("02")},
	}, nil)
	require.NoError(t, err)

	forced, err := m.UpdateOutcomes([]OutcomeUpdate{
		{ID: "b", Enabled: true, SendID: "x"},
		{ID: "a", Enabled: true},
		{ID: "c", Enabled: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, forced)
	assert.Equal(t, "a", m.Consume(0x01, 0).OutcomeID)
	assert.Equal(t, "c", m.Consume(0x02, 1).OutcomeID)

	_, err = m.UpdateOutcomes([]OutcomeUpdate{
		{ID: "c", Enabled: false},
		{ID: "zzz", Enabled: true},
	})
	assert.ErrorIs(t, err, ErrUnknownOutcome)
	o, _ := m.Outcome("c")
	assert.True(t, o.Enabled, "a failed batch must not change anything")
}

func TestMatcher_PropertyDeterministic(t *testing.T) {
	defs := []PatternDef{
		{ID: "a", Pattern: Hex("00 ** 02"), Enabled: true, SendID: "x"},
		{ID: "b", Pattern: Hex("00 01 **"), Enabled: true},
		{ID: "c", Pattern: Hex("01 01"), Enabled: true, SendID: "y"},
		{ID: "d", Pattern: Hex("03")},
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("same input gives the same analysis", prop.ForAll(
		func(data []uint8) bool {
			m1, _, _ := NewMatcher(defs, nil)
			m2, _, _ := NewMatcher(defs, nil)
			for i, b := range data {
				r1 := m1.Consume(b, int64(i))
				r2 := m2.Consume(b, int64(i))
				if r1.Transition != r2.Transition || r1.OutcomeID != r2.OutcomeID ||
					r1.CommitNow != r2.CommitNow || r1.CommitPrevious != r2.CommitPrevious {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt8Range(0, 4)),
	))

	properties.Property("every byte is pushed exactly once", prop.ForAll(
		func(data []uint8) bool {
			m, _, _ := NewMatcher(defs, nil)
			for i, b := range data {
				r := m.Consume(b, int64(i))
				if !r.Push || r.Byte != b {
					return false
				}
				if r.Transition == OKToOK && r.CommitPrevious {
					return false
				}
				if r.RequestTransmit && !r.CommitNow {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt8Range(0, 4)),
	))

	properties.TestingRun(t)
}
