package serdbg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldFormatter(t *testing.T) {
	frame := []byte{0xA0, 0x34, 0x12, 0x03}
	tests := []struct {
		name string
		f    FieldFormatter
		want string
	}{
		{"single byte", FieldFormatter{Label: "seq", Offset: 1}, "seq=0x34"},
		{"little endian", FieldFormatter{Label: "v", Offset: 1, Size: 2}, "v=0x1234"},
		{"big endian", FieldFormatter{Label: "v", Offset: 1, Size: 2, BigEndian: true}, "v=0x3412"},
		{"out of range", FieldFormatter{Label: "v", Offset: 3, Size: 2}, ""},
		{"negative offset", FieldFormatter{Label: "v", Offset: -1}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.FormatLog(frame))
		})
	}
}

func TestMultiFormatter(t *testing.T) {
	mf := MultiFormatter{
		FieldFormatter{Label: "a", Offset: 0},
		FieldFormatter{Label: "b", Offset: 9},
		LogFormatterFunc(func([]byte) string { return "end" }),
	}
	assert.Equal(t, "a=0x01 end", mf.FormatLog([]byte{0x01}))
}

func TestCopyAnalyzer(t *testing.T) {
	h := &recordingHandle{}
	err := CopyAnalyzer{SendID: "ack", From: 1, To: 5, Len: 4}.Analyze([]byte{0x00, 0x11, 0x22}, h)
	assert.NoError(t, err)
	assert.Equal(t, map[int]byte{5: 0x11, 6: 0x22}, h.writes)

	h = &recordingHandle{err: ErrFieldIndex}
	err = CopyAnalyzer{SendID: "ack", From: 0, To: 9, Len: 1}.Analyze([]byte{0x00}, h)
	assert.ErrorIs(t, err, ErrFieldIndex)
}

func TestMultiAnalyzer(t *testing.T) {
	var calls []string
	step := func(name string, err error) Analyzer {
		return AnalyzerFunc(func([]byte, AnalyzeHandle) error {
			calls = append(calls, name)
			return err
		})
	}
	boom := errors.New("boom")
	err := MultiAnalyzer{step("a", nil), step("b", boom), step("c", nil)}.Analyze(nil, &recordingHandle{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestSendWriter_SendIDs(t *testing.T) {
	ma := MultiAnalyzer{
		CopyAnalyzer{SendID: "ack", Len: 1},
		AnalyzerFunc(func(frame []byte, h AnalyzeHandle) error { return nil }),
		MultiAnalyzer{CopyAnalyzer{SendID: "poll", Len: 1}},
	}
	assert.Equal(t, []string{"ack", "poll"}, ma.SendIDs())
	assert.Equal(t, []string{"ack"}, CopyAnalyzer{SendID: "ack"}.SendIDs())
}
