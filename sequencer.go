package serdbg

import (
	"fmt"
	"time"
)

// SendSource supplies the bytes of a send data id.
type SendSource interface {
	SendBytes(id string) ([]byte, error)
}

// SendBytes implements SendSource.
func (t *SendTable) SendBytes(id string) ([]byte, error) {
	sd, ok := t.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSendID, id)
	}
	return sd.Bytes(), nil
}

// TickResult reports what one Tick did.
type TickResult struct {
	// Sent is the send data id transmitted by this tick, if any
	Sent string
	// Data is the payload to write for Sent
	Data []byte
	// Waiting is set while a wait step has not elapsed
	Waiting bool
	// Stopped is set when the script ended on this tick
	Stopped bool
}

// Sequencer runs at most one autosend script. It does no I/O of its own: a
// send step hands its payload back to the caller through TickResult. A
// Sequencer belongs to the I/O goroutine.
type Sequencer struct {
	src       SendSource
	active    *Script
	cursor    int
	waitStart int64
	waiting   bool
}

// NewSequencer returns an idle sequencer reading payloads from src.
func NewSequencer(src SendSource) *Sequencer {
	return &Sequencer{src: src}
}

// Start makes sc the running script from its first step. A script that was
// running is stopped first.
func (s *Sequencer) Start(sc *Script) {
	if s.active != nil {
		s.active.Enabled = false
	}
	s.active = sc
	s.cursor = 0
	s.waitStart = 0
	s.waiting = false
	if sc != nil {
		sc.Enabled = true
	}
}

// Stop ends the running script, if any.
func (s *Sequencer) Stop() {
	if s.active != nil {
		s.active.Enabled = false
	}
	s.active = nil
	s.cursor = 0
	s.waiting = false
}

// Active returns the id of the running script, or "".
func (s *Sequencer) Active() string {
	if s.active == nil {
		return ""
	}
	return s.active.ID
}

// Cursor returns the index of the next step to run.
func (s *Sequencer) Cursor() int {
	return s.cursor
}

// Tick runs exactly one step of the active script.
func (s *Sequencer) Tick(now int64) (TickResult, error) {
	var res TickResult
	sc := s.active
	if sc == nil {
		return res, nil
	}
	n := len(sc.Steps)
	step := sc.Steps[s.cursor]

	switch step.Kind {
	case StepSend:
		data, err := s.src.SendBytes(step.SendID)
		if err != nil {
			s.Stop()
			res.Stopped = true
			return res, fmt.Errorf("script %q step %d: %w", sc.ID, s.cursor, err)
		}
		res.Sent = step.SendID
		res.Data = data
		s.cursor = (s.cursor + 1) % n
	case StepWait:
		if !s.waiting {
			s.waiting = true
			s.waitStart = now
		}
		if time.Duration(now-s.waitStart) >= step.Wait {
			s.waiting = false
			s.cursor = (s.cursor + 1) % n
		} else {
			res.Waiting = true
		}
	case StepJump:
		s.cursor = step.Target % n
	case StepExit:
		s.Stop()
		res.Stopped = true
	}
	return res, nil
}
