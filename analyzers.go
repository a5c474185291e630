package serdbg

import (
	"fmt"
	"strings"
)

// SendWriter is implemented by analyzers that write into send data. Build
// rejects an engine whose analyzers name send data it does not hold.
type SendWriter interface {
	SendIDs() []string
}

// CopyAnalyzer copies Len bytes of the matched frame, starting at From, into
// the send data SendID starting at To. Bytes beyond the end of the frame are
// ignored.
type CopyAnalyzer struct {
	SendID string
	From   int
	To     int
	Len    int
}

// Analyze implements Analyzer.
func (c CopyAnalyzer) Analyze(frame []byte, h AnalyzeHandle) error {
	for i := 0; i < c.Len; i++ {
		src := c.From + i
		if src < 0 || src >= len(frame) {
			break
		}
		if err := h.SetSendByte(c.SendID, c.To+i, frame[src]); err != nil {
			return fmt.Errorf("copy byte %d of frame: %w", src, err)
		}
	}
	return nil
}

// SendIDs implements SendWriter.
func (c CopyAnalyzer) SendIDs() []string {
	return []string{c.SendID}
}

// FieldFormatter renders Size bytes of the frame at Offset as
// "label=0x...." for the log detail. Bytes are little endian unless
// BigEndian is set.
type FieldFormatter struct {
	Label     string
	Offset    int
	Size      int
	BigEndian bool
}

// FormatLog implements LogFormatter.
func (f FieldFormatter) FormatLog(frame []byte) string {
	size := f.Size
	if size <= 0 {
		size = 1
	}
	if f.Offset < 0 || f.Offset+size > len(frame) {
		return ""
	}
	field := frame[f.Offset : f.Offset+size]
	var sb strings.Builder
	sb.WriteString(f.Label)
	sb.WriteString("=0x")
	for i := range field {
		b := field[i]
		if !f.BigEndian {
			b = field[len(field)-1-i]
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// MultiFormatter joins the output of several formatters with a space,
// skipping empty results.
type MultiFormatter []LogFormatter

// FormatLog implements LogFormatter.
func (mf MultiFormatter) FormatLog(frame []byte) string {
	var parts []string
	for _, f := range mf {
		if s := f.FormatLog(frame); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// MultiAnalyzer runs several analyzers in order and stops on the first error.
type MultiAnalyzer []Analyzer

// Analyze implements Analyzer.
func (ma MultiAnalyzer) Analyze(frame []byte, h AnalyzeHandle) error {
	for _, a := range ma {
		if err := a.Analyze(frame, h); err != nil {
			return err
		}
	}
	return nil
}

// SendIDs implements SendWriter for the members that write send data.
func (ma MultiAnalyzer) SendIDs() []string {
	var ids []string
	for _, a := range ma {
		if w, ok := a.(SendWriter); ok {
			ids = append(ids, w.SendIDs()...)
		}
	}
	return ids
}
