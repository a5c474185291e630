package serdbg

// AnalyzeHandle is the narrow view of the I/O side that an Analyzer may use
// to react to a matched frame.
type AnalyzeHandle interface {
	// SetSendByte overwrites one byte of a send-data buffer.
	SetSendByte(sendID string, pos int, v byte) error
	// ChangeScript replaces the response of the current match with sendID.
	ChangeScript(sendID string) error
}

// Analyzer inspects a matched frame. It runs on the I/O goroutine right
// after the match, before the response is started.
type Analyzer interface {
	Analyze(frame []byte, h AnalyzeHandle) error
}

// AnalyzerFunc adapts a plain function to the Analyzer interface.
type AnalyzerFunc func(frame []byte, h AnalyzeHandle) error

// Analyze calls f(frame, h).
func (f AnalyzerFunc) Analyze(frame []byte, h AnalyzeHandle) error {
	return f(frame, h)
}

// LogFormatter renders extra detail for the log line of a matched frame.
type LogFormatter interface {
	FormatLog(frame []byte) string
}

// LogFormatterFunc adapts a plain function to the LogFormatter interface.
type LogFormatterFunc func(frame []byte) string

// FormatLog calls f(frame).
func (f LogFormatterFunc) FormatLog(frame []byte) string {
	return f(frame)
}

// PatternDef declares one outcome of the receive analysis table.
type PatternDef struct {
	// ID is the unique outcome name
	ID string
	// Pattern is the byte pattern that selects this outcome
	Pattern Pattern
	// Enabled marks the outcome as a candidate for the active one on its leaf
	Enabled bool
	// SendID names the script or send data started on a match; empty for no response
	SendID string
	// Analyzer is an optional hook run on the matched frame
	Analyzer Analyzer
	// Formatter is an optional hook producing the log detail
	Formatter LogFormatter
}

// Outcome is the runtime form of a PatternDef. Several outcomes may end on
// the same trie leaf but at most one of them is active.
type Outcome struct {
	ID        string
	Index     int
	Pattern   Pattern
	Enabled   bool
	SendID    string
	Analyzer  Analyzer
	Formatter LogFormatter

	leaf *patternNode
}

// Active reports whether o is the outcome that answers on its leaf.
func (o *Outcome) Active() bool {
	return o.leaf != nil && o.leaf.active == o
}

// OutcomeState is a snapshot of an outcome for display.
type OutcomeState struct {
	ID      string
	Index   int
	Pattern string
	Enabled bool
	Active  bool
	SendID  string
}

// OutcomeUpdate is one entry of a batch update.
type OutcomeUpdate struct {
	ID      string
	Enabled bool
	SendID  string
}
