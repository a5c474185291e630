package serdbg

import (
	"fmt"
	"time"
)

// StepKind is the type of an autosend step.
type StepKind int

const (
	// StepSend transmits a send data buffer
	StepSend StepKind = iota
	// StepWait pauses the script
	StepWait
	// StepJump moves the cursor to another step
	StepJump
	// StepExit stops the script
	StepExit
)

// String returns the step keyword used in table files.
func (k StepKind) String() string {
	switch k {
	case StepSend:
		return "send"
	case StepWait:
		return "wait"
	case StepJump:
		return "jump"
	case StepExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Step is one instruction of a Script.
type Step struct {
	Kind   StepKind
	SendID string
	Wait   time.Duration
	Target int
}

// SendStep returns a step that transmits send data id.
func SendStep(id string) Step { return Step{Kind: StepSend, SendID: id} }

// WaitStep returns a step that pauses for d.
func WaitStep(d time.Duration) Step { return Step{Kind: StepWait, Wait: d} }

// JumpStep returns a step that continues at step index target.
func JumpStep(target int) Step { return Step{Kind: StepJump, Target: target} }

// ExitStep returns a step that stops the script.
func ExitStep() Step { return Step{Kind: StepExit} }

// String renders the step in table file syntax.
func (s Step) String() string {
	switch s.Kind {
	case StepSend:
		return "send " + s.SendID
	case StepWait:
		return "wait " + s.Wait.String()
	case StepJump:
		return fmt.Sprintf("jump %d", s.Target)
	default:
		return s.Kind.String()
	}
}

// Script is an autosend sequence. A script without an exit step loops
// forever. Enabled marks the script that is currently running, or the one to
// start automatically when the table is loaded.
type Script struct {
	ID      string
	Steps   []Step
	Enabled bool
}

// NewScript validates steps and returns a script.
func NewScript(id string, enabled bool, steps ...Step) (*Script, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: script id", ErrConfigRequired)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyScript, id)
	}
	for i, s := range steps {
		if s.Kind == StepJump && (s.Target < 0 || s.Target >= len(steps)) {
			return nil, fmt.Errorf("%w: script %q step %d targets %d", ErrJumpOutOfRange, id, i, s.Target)
		}
		if s.Kind == StepSend && s.SendID == "" {
			return nil, fmt.Errorf("%w: script %q step %d has no send id", ErrConfigRequired, id, i)
		}
	}
	return &Script{ID: id, Steps: append([]Step(nil), steps...), Enabled: enabled}, nil
}

// ScriptTable holds the autosend scripts in declaration order.
type ScriptTable struct {
	order []*Script
	byID  map[string]*Script
	auto  *Script
}

// NewScriptTable indexes scripts and checks every send step against sends.
// Only the first enabled script stays enabled; the indices of the others are
// returned.
func NewScriptTable(sends *SendTable, scripts ...*Script) (*ScriptTable, []int, error) {
	t := &ScriptTable{byID: make(map[string]*Script, len(scripts))}
	var forced []int
	for i, sc := range scripts {
		if _, ok := t.byID[sc.ID]; ok {
			return nil, nil, fmt.Errorf("%w: script %q", ErrDuplicateID, sc.ID)
		}
		for j, s := range sc.Steps {
			if s.Kind != StepSend {
				continue
			}
			if _, ok := sends.Get(s.SendID); !ok {
				return nil, nil, fmt.Errorf("%w: %q in script %q step %d", ErrUnknownSendID, s.SendID, sc.ID, j)
			}
		}
		if sc.Enabled {
			if t.auto == nil {
				t.auto = sc
			} else {
				sc.Enabled = false
				forced = append(forced, i)
			}
		}
		t.byID[sc.ID] = sc
		t.order = append(t.order, sc)
	}
	return t, forced, nil
}

// Get returns the script registered as id.
func (t *ScriptTable) Get(id string) (*Script, bool) {
	sc, ok := t.byID[id]
	return sc, ok
}

// All returns the scripts in declaration order.
func (t *ScriptTable) All() []*Script {
	return t.order
}

// AutoStart returns the script declared enabled, or nil.
func (t *ScriptTable) AutoStart() *Script {
	return t.auto
}
