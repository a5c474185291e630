package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jaracil/serdbg"
)

const consoleHelp = `commands:
  send <id>                        transmit send data or start a script
  raw <hex>                        transmit literal bytes
  start <script>                   start an autosend script
  stop                             stop the running script
  enable <outcome> [send-id]       enable an autoresponse outcome
  disable <outcome>                disable an autoresponse outcome
  set <send-id> <field> <value>    set a send data field
  status                           show session state
  quit                             end the session`

var errQuit = errors.New("quit")

// console reads commands line by line and forwards them to the session.
type console struct {
	msgr    *serdbg.Messenger
	sess    *serdbg.Session
	out     io.Writer
	timeout time.Duration
}

func (c *console) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		err := c.exec(line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func (c *console) exec(line string) error {
	args := strings.Fields(line)
	switch cmd, args := args[0], args[1:]; {
	case cmd == "quit" || cmd == "exit":
		return errQuit
	case cmd == "help":
		fmt.Fprintln(c.out, consoleHelp)
		return nil
	case cmd == "send" && len(args) == 1:
		return c.msgr.Transmit(args[0])
	case cmd == "raw" && len(args) >= 1:
		data, err := serdbg.ParseHex(strings.Join(args, ""))
		if err != nil {
			return err
		}
		return c.msgr.TransmitRaw(data)
	case cmd == "start" && len(args) == 1:
		return c.msgr.StartScript(args[0])
	case cmd == "stop" && len(args) == 0:
		return c.msgr.StopScript()
	case cmd == "enable" && (len(args) == 1 || len(args) == 2):
		return c.setOutcome(args[0], true, args[1:])
	case cmd == "disable" && len(args) == 1:
		return c.setOutcome(args[0], false, nil)
	case cmd == "set" && len(args) == 3:
		field, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad field index %q", args[1])
		}
		return c.msgr.SetField(args[0], field, args[2])
	case cmd == "status" && len(args) == 0:
		return c.status()
	default:
		return fmt.Errorf("unknown command %q, try help", line)
	}
}

// query runs fn on the I/O goroutine and waits for it to finish.
func (c *console) query(fn func(e *serdbg.Engine) error) error {
	done := make(chan error, 1)
	err := c.msgr.Apply(func(e *serdbg.Engine) error {
		err := fn(e)
		done <- err
		return err
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-c.msgr.Done():
		return serdbg.ErrSessionClosed
	case <-time.After(c.timeout):
		return fmt.Errorf("session did not answer within %v", c.timeout)
	}
}

func (c *console) setOutcome(id string, enabled bool, sendArg []string) error {
	var forced []int
	err := c.query(func(e *serdbg.Engine) error {
		o, ok := e.Matcher().Outcome(id)
		if !ok {
			return fmt.Errorf("%w: %q", serdbg.ErrUnknownOutcome, id)
		}
		sendID := o.SendID
		if len(sendArg) > 0 {
			sendID = sendArg[0]
		}
		var err error
		forced, err = e.UpdateOutcome(id, enabled, sendID)
		return err
	})
	if err != nil {
		return err
	}
	if len(forced) > 0 {
		fmt.Fprintf(c.out, "disabled outcomes %v\n", forced)
	}
	return nil
}

func (c *console) status() error {
	var (
		script   string
		outcomes []serdbg.OutcomeState
	)
	err := c.query(func(e *serdbg.Engine) error {
		script = e.Sequencer().Active()
		outcomes = e.Matcher().Outcomes()
		return nil
	})
	if err != nil {
		return err
	}
	m := c.sess.MetricsSync()
	fmt.Fprintf(c.out, "session %s %v rx=%d tx=%d matches=%d frames=%d dropped=%d\n",
		c.sess.Id(), m.Status, m.RxBytes, m.TxBytes, m.Matches, m.Frames, c.msgr.Dropped())
	if script == "" {
		script = "-"
	}
	fmt.Fprintf(c.out, "script %s\n", script)
	for _, o := range outcomes {
		mark := " "
		if o.Active {
			mark = "*"
		}
		fmt.Fprintf(c.out, "%s %-16s %-24s -> %s\n", mark, o.ID, o.Pattern, o.SendID)
	}
	return nil
}
