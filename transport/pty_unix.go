//go:build unix

package transport

import (
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// Pty is a pseudo-terminal whose slave side stands in for a serial device:
// the program under test opens Name() and the session talks on the master.
type Pty struct {
	master, slave *os.File
	timeout       time.Duration
	closed        atomic.Bool
}

// OpenPty creates a new pseudo-terminal. A zero timeout uses
// DefaultReadTimeout.
func OpenPty(timeout time.Duration) (*Pty, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &Pty{
		master:  master,
		slave:   slave,
		timeout: timeout,
	}, nil
}

// Close releases both ends of the pseudo-terminal. Closing twice is a no-op.
func (p *Pty) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return errors.Join(p.master.Close(), p.slave.Close())
}

// Name returns the path of the slave device.
func (p *Pty) Name() string {
	return p.slave.Name()
}

// Read waits up to the read timeout for input on the master side. It
// returns (0, nil) when nothing arrived.
func (p *Pty) Read(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	fds := []unix.PollFd{{
		Fd:     int32(p.master.Fd()),
		Events: unix.POLLIN,
	}}
	n, err := unix.Poll(fds, int(p.timeout/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 || fds[0].Revents&unix.POLLIN == 0 {
		return 0, nil
	}
	return p.master.Read(b)
}

// Write sends b to the slave side.
func (p *Pty) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	return p.master.Write(b)
}

// Flush is a no-op: a pseudo-terminal has no line to drain.
func (p *Pty) Flush() error {
	return nil
}
