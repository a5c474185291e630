package serdbg

import (
	"fmt"
	"sort"
)

// Transition classifies a byte against the class of the byte before it.
// OK means the byte continued (or started) a pattern, NG means it did not.
type Transition int

const (
	// OKToOK is a matching byte after a matching byte
	OKToOK Transition = iota
	// OKToNG is a failing byte after a matching byte
	OKToNG
	// NGToOK is a matching byte after a failing byte
	NGToOK
	// NGToNG is a failing byte after a failing byte
	NGToNG
)

// String returns a human-readable string representation of the transition.
func (t Transition) String() string {
	switch t {
	case OKToOK:
		return "OK->OK"
	case OKToNG:
		return "OK->NG"
	case NGToOK:
		return "NG->OK"
	case NGToNG:
		return "NG->NG"
	default:
		return "Unknown"
	}
}

// AnalyzeResult is the outcome of feeding one byte to the Matcher. The flags
// tell a log assembler what to do with the byte, in this order:
// CommitPrevious, Push, CommitNow.
type AnalyzeResult struct {
	// Byte is the consumed byte
	Byte byte
	// At is the clock time of the byte in nanoseconds
	At int64
	// Transition is the class change caused by the byte
	Transition Transition
	// Resync is set when the byte broke a partial match but started a new one at the root
	Resync bool
	// CommitPrevious asks to close the pending line before pushing this byte
	CommitPrevious bool
	// Push asks to append the byte to the pending line
	Push bool
	// CommitNow asks to close the pending line after pushing this byte
	CommitNow bool
	// RequestTransmit asks the I/O side to start ScriptID
	RequestTransmit bool
	// OutcomeID names the matched outcome
	OutcomeID string
	// ScriptID is the send id of the response
	ScriptID string
	// Detail is the log detail of the match
	Detail string
	// AnalyzeErr holds the error returned by the outcome's analyzer, if any
	AnalyzeErr error
}

// Matched reports whether the byte completed a pattern with an active outcome.
func (r *AnalyzeResult) Matched() bool {
	return r.OutcomeID != ""
}

// Resolver tells whether a send id names a script or send data.
type Resolver interface {
	Known(sendID string) bool
}

// Matcher is the incremental receive analyzer. It walks a trie of patterns
// one byte at a time without backtracking. A Matcher is not safe for
// concurrent use; it belongs to the I/O goroutine.
type Matcher struct {
	root     *patternNode
	cursor   *patternNode
	buf      []byte
	prevOK   bool
	outcomes map[string]*Outcome
	order    []*Outcome
	resolver Resolver
	handle   AnalyzeHandle
}

// NewMatcher builds the trie from defs. The returned indices are the
// outcomes that were declared enabled but had to be disabled because an
// earlier outcome on the same pattern was already enabled. A nil resolver
// accepts every send id.
func NewMatcher(defs []PatternDef, res Resolver) (*Matcher, []int, error) {
	m := &Matcher{
		root:     newPatternNode(),
		outcomes: make(map[string]*Outcome),
		resolver: res,
		prevOK:   true,
	}
	m.cursor = m.root

	var forced []int
	for i, def := range defs {
		if def.ID == "" {
			return nil, nil, fmt.Errorf("%w: outcome %d has no id", ErrConfigRequired, i)
		}
		if _, ok := m.outcomes[def.ID]; ok {
			return nil, nil, fmt.Errorf("%w: outcome %q", ErrDuplicateID, def.ID)
		}
		if len(def.Pattern) == 0 {
			return nil, nil, fmt.Errorf("%w: outcome %q has an empty pattern", ErrInvalidPattern, def.ID)
		}
		if err := m.checkSendID(def.SendID); err != nil {
			return nil, nil, fmt.Errorf("outcome %q: %w", def.ID, err)
		}
		o := &Outcome{
			ID:        def.ID,
			Index:     i,
			Pattern:   def.Pattern,
			Enabled:   def.Enabled,
			SendID:    def.SendID,
			Analyzer:  def.Analyzer,
			Formatter: def.Formatter,
		}
		leaf := m.root.insert(def.Pattern)
		if !leaf.attach(o) {
			forced = append(forced, i)
		}
		m.outcomes[o.ID] = o
		m.order = append(m.order, o)
	}
	return m, forced, nil
}

func (m *Matcher) checkSendID(sendID string) error {
	if sendID == "" || m.resolver == nil {
		return nil
	}
	if !m.resolver.Known(sendID) {
		return fmt.Errorf("%w: %q", ErrUnknownSendID, sendID)
	}
	return nil
}

// Bind sets the handle passed to analyzers.
func (m *Matcher) Bind(h AnalyzeHandle) {
	m.handle = h
}

// Reset drops any partial match.
func (m *Matcher) Reset() {
	m.cursor = m.root
	m.buf = m.buf[:0]
	m.prevOK = true
}

// Pending returns a copy of the bytes of the current partial match.
func (m *Matcher) Pending() []byte {
	return append([]byte(nil), m.buf...)
}

// Consume feeds one received byte to the analyzer.
func (m *Matcher) Consume(b byte, now int64) AnalyzeResult {
	res := AnalyzeResult{Byte: b, At: now}

	if next := m.cursor.step(b); next != nil {
		if m.prevOK {
			res.Transition = OKToOK
		} else {
			res.Transition = NGToOK
			res.CommitPrevious = true
		}
		m.prevOK = true
		m.accept(next, b, &res)
		return res
	}

	if m.prevOK {
		res.Transition = OKToNG
	} else {
		res.Transition = NGToNG
	}
	m.prevOK = false
	retry := m.cursor != m.root
	m.cursor = m.root
	m.buf = m.buf[:0]

	if retry {
		if next := m.root.step(b); next != nil {
			res.Resync = true
			res.CommitPrevious = true
			m.prevOK = true
			m.accept(next, b, &res)
			return res
		}
	}

	res.Push = true
	res.CommitNow = true
	return res
}

func (m *Matcher) accept(n *patternNode, b byte, res *AnalyzeResult) {
	res.Push = true
	m.buf = append(m.buf, b)
	m.cursor = n

	if n.tail {
		res.CommitNow = true
		if o := n.active; o != nil {
			m.fire(o, res)
		}
	}
	if n.leaf() {
		res.CommitNow = true
		m.cursor = m.root
		m.buf = m.buf[:0]
	}
}

// fire hands the hooks their own copy of the frame, so they may keep it.
func (m *Matcher) fire(o *Outcome, res *AnalyzeResult) {
	frame := append([]byte(nil), m.buf...)
	res.OutcomeID = o.ID
	res.ScriptID = o.SendID
	res.RequestTransmit = o.SendID != ""
	res.Detail = o.ID
	if o.Formatter != nil {
		if s := o.Formatter.FormatLog(frame); s != "" {
			res.Detail = o.ID + ": " + s
		}
	}
	if o.Analyzer != nil && m.handle != nil {
		res.AnalyzeErr = o.Analyzer.Analyze(frame, m.handle)
	}
}

// UpdateOutcome changes the enable flag and response of one outcome. When
// the outcome is enabled, any other enabled outcome on the same pattern is
// disabled and its index returned.
func (m *Matcher) UpdateOutcome(id string, enabled bool, sendID string) ([]int, error) {
	o, ok := m.outcomes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutcome, id)
	}
	if err := m.checkSendID(sendID); err != nil {
		return nil, fmt.Errorf("outcome %q: %w", id, err)
	}
	o.SendID = sendID
	o.Enabled = enabled

	leaf := o.leaf
	if !enabled {
		if leaf.active == o {
			leaf.active = nil
		}
		return nil, nil
	}

	var forced []int
	for _, sib := range leaf.order {
		if sib != o && sib.Enabled {
			sib.Enabled = false
			forced = append(forced, sib.Index)
		}
	}
	leaf.active = o
	return forced, nil
}

// UpdateOutcomes applies a batch of updates and then keeps the first
// declared enabled outcome of every touched pattern. Either every update is
// applied or none is.
func (m *Matcher) UpdateOutcomes(updates []OutcomeUpdate) ([]int, error) {
	for _, u := range updates {
		if _, ok := m.outcomes[u.ID]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownOutcome, u.ID)
		}
		if err := m.checkSendID(u.SendID); err != nil {
			return nil, fmt.Errorf("outcome %q: %w", u.ID, err)
		}
	}

	touched := make(map[*patternNode]struct{})
	var leaves []*patternNode
	for _, u := range updates {
		o := m.outcomes[u.ID]
		o.Enabled = u.Enabled
		o.SendID = u.SendID
		if _, ok := touched[o.leaf]; !ok {
			touched[o.leaf] = struct{}{}
			leaves = append(leaves, o.leaf)
		}
	}

	var forced []int
	for _, leaf := range leaves {
		for _, o := range leaf.reconcile() {
			forced = append(forced, o.Index)
		}
	}
	sort.Ints(forced)
	return forced, nil
}

// Outcome returns the outcome registered as id.
func (m *Matcher) Outcome(id string) (*Outcome, bool) {
	o, ok := m.outcomes[id]
	return o, ok
}

// Outcomes returns a snapshot of every outcome in declaration order.
func (m *Matcher) Outcomes() []OutcomeState {
	states := make([]OutcomeState, len(m.order))
	for i, o := range m.order {
		states[i] = OutcomeState{
			ID:      o.ID,
			Index:   o.Index,
			Pattern: o.Pattern.String(),
			Enabled: o.Enabled,
			Active:  o.Active(),
			SendID:  o.SendID,
		}
	}
	return states
}
