package serdbg

import "fmt"

// Definitions is the parsed form of the three tables a session runs on.
type Definitions struct {
	Patterns []PatternDef
	Sends    []*SendData
	Scripts  []*Script
}

// BuildReport lists the definitions that were declared enabled but had to
// be disabled to keep a single active outcome per pattern and a single
// auto-start script.
type BuildReport struct {
	ForcedOutcomes []int
	ForcedScripts  []int
}

// Engine bundles the matcher, the sequencer and the data tables they work
// on. It is owned by the I/O goroutine; other goroutines reach it through
// CmdApply commands.
type Engine struct {
	matcher *Matcher
	seq     *Sequencer
	sends   *SendTable
	scripts *ScriptTable

	changed string
}

// Build validates defs and assembles an Engine. Any reference to an unknown
// send id, script or jump target fails the build.
func Build(defs Definitions) (*Engine, BuildReport, error) {
	var report BuildReport

	sends, err := NewSendTable(defs.Sends...)
	if err != nil {
		return nil, report, err
	}
	scripts, forcedScripts, err := NewScriptTable(sends, defs.Scripts...)
	if err != nil {
		return nil, report, err
	}
	e := &Engine{
		sends:   sends,
		scripts: scripts,
		seq:     NewSequencer(sends),
	}
	for _, def := range defs.Patterns {
		w, ok := def.Analyzer.(SendWriter)
		if !ok {
			continue
		}
		for _, id := range w.SendIDs() {
			if _, ok := sends.Get(id); !ok {
				return nil, report, fmt.Errorf("pattern %q analyzer: %w: %q", def.ID, ErrUnknownSendID, id)
			}
		}
	}
	matcher, forcedOutcomes, err := NewMatcher(defs.Patterns, e)
	if err != nil {
		return nil, report, err
	}
	matcher.Bind(e)
	e.matcher = matcher

	report.ForcedOutcomes = forcedOutcomes
	report.ForcedScripts = forcedScripts
	return e, report, nil
}

// Known implements Resolver. A send id is either a script id or a send data
// id; scripts take precedence.
func (e *Engine) Known(sendID string) bool {
	if _, ok := e.scripts.Get(sendID); ok {
		return true
	}
	_, ok := e.sends.Get(sendID)
	return ok
}

// Resolve maps a send id to the script it starts or, for send data, the
// bytes to write at once. An empty id resolves to nothing.
func (e *Engine) Resolve(sendID string) (*Script, []byte, error) {
	if sendID == "" {
		return nil, nil, nil
	}
	if sc, ok := e.scripts.Get(sendID); ok {
		return sc, nil, nil
	}
	if sd, ok := e.sends.Get(sendID); ok {
		return nil, sd.Bytes(), nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownSendID, sendID)
}

// Feed runs one received byte through the matcher. When the byte completes
// a frame with a response, a script response is started on the sequencer
// and a send data response is returned for immediate transmission.
func (e *Engine) Feed(b byte, now int64) (AnalyzeResult, []byte) {
	e.changed = ""
	res := e.matcher.Consume(b, now)
	if e.changed != "" {
		res.ScriptID = e.changed
		res.RequestTransmit = true
	}
	if !res.RequestTransmit {
		return res, nil
	}
	data, err := e.Transmit(res.ScriptID)
	if err != nil {
		res.RequestTransmit = false
		if res.AnalyzeErr == nil {
			res.AnalyzeErr = err
		}
	}
	return res, data
}

// Transmit starts script sendID, or returns the bytes of send data sendID.
func (e *Engine) Transmit(sendID string) ([]byte, error) {
	sc, data, err := e.Resolve(sendID)
	if err != nil {
		return nil, err
	}
	if sc != nil {
		e.seq.Start(sc)
	}
	return data, nil
}

// Tick advances the running script by one step.
func (e *Engine) Tick(now int64) (TickResult, error) {
	return e.seq.Tick(now)
}

// Reset drops any partial match and stops the running script. A session
// calls it before serving its first byte.
func (e *Engine) Reset() {
	e.matcher.Reset()
	e.seq.Stop()
	e.changed = ""
}

// StartScript starts the script registered as id.
func (e *Engine) StartScript(id string) error {
	sc, ok := e.scripts.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScript, id)
	}
	e.seq.Start(sc)
	return nil
}

// StopScript stops the running script.
func (e *Engine) StopScript() {
	e.seq.Stop()
}

// AutoStart starts the script declared enabled in the table and returns its
// id, or "" when there is none.
func (e *Engine) AutoStart() string {
	sc := e.scripts.AutoStart()
	if sc == nil {
		return ""
	}
	e.seq.Start(sc)
	return sc.ID
}

// UpdateOutcome forwards to Matcher.UpdateOutcome.
func (e *Engine) UpdateOutcome(id string, enabled bool, sendID string) ([]int, error) {
	return e.matcher.UpdateOutcome(id, enabled, sendID)
}

// UpdateOutcomes forwards to Matcher.UpdateOutcomes.
func (e *Engine) UpdateOutcomes(updates []OutcomeUpdate) ([]int, error) {
	return e.matcher.UpdateOutcomes(updates)
}

// SetSendField sets field idx of send data sendID from its text form.
func (e *Engine) SetSendField(sendID string, idx int, text string) error {
	sd, ok := e.sends.Get(sendID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSendID, sendID)
	}
	return sd.SetField(idx, text)
}

// SetSendByte implements AnalyzeHandle.
func (e *Engine) SetSendByte(sendID string, pos int, v byte) error {
	sd, ok := e.sends.Get(sendID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSendID, sendID)
	}
	return sd.SetByte(pos, v)
}

// ChangeScript implements AnalyzeHandle. The change replaces the response of
// the frame being analyzed.
func (e *Engine) ChangeScript(sendID string) error {
	if !e.Known(sendID) {
		return fmt.Errorf("%w: %q", ErrUnknownSendID, sendID)
	}
	e.changed = sendID
	return nil
}

// Matcher returns the receive analyzer.
func (e *Engine) Matcher() *Matcher { return e.matcher }

// Sequencer returns the autosend runner.
func (e *Engine) Sequencer() *Sequencer { return e.seq }

// Sends returns the send data table.
func (e *Engine) Sends() *SendTable { return e.sends }

// Scripts returns the autosend script table.
func (e *Engine) Scripts() *ScriptTable { return e.scripts }
