//go:build !unix

package transport

import (
	"sync/atomic"
	"time"

	"github.com/aymanbagabas/go-pty"
)

type readResult struct {
	b   byte
	err error
}

// Pty is a pseudo-terminal whose slave side stands in for a serial device.
// The platform pty only offers blocking reads, so a reader goroutine feeds
// received bytes through a channel and Read waits on it with a timeout.
type Pty struct {
	p       pty.Pty
	timeout time.Duration
	rx      chan readResult
	closed  atomic.Bool
}

// OpenPty creates a new pseudo-terminal. A zero timeout uses
// DefaultReadTimeout.
func OpenPty(timeout time.Duration) (*Pty, error) {
	p, err := pty.New()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	t := &Pty{p: p, timeout: timeout, rx: make(chan readResult, 64)}
	go t.readTask()
	return t, nil
}

func (t *Pty) readTask() {
	buf := make([]byte, 1)
	for {
		n, err := t.p.Read(buf)
		if err != nil {
			t.rx <- readResult{err: err}
			close(t.rx)
			return
		}
		if n > 0 {
			t.rx <- readResult{b: buf[0]}
		}
	}
}

// Close releases the pseudo-terminal. Closing twice is a no-op.
func (t *Pty) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.p.Close()
}

// Name returns the path of the slave device.
func (t *Pty) Name() string {
	return t.p.Name()
}

// Read returns at most one byte, waiting up to the read timeout. It returns
// (0, nil) when nothing arrived.
func (t *Pty) Read(b []byte) (int, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	select {
	case r, ok := <-t.rx:
		if !ok {
			return 0, ErrClosed
		}
		if r.err != nil {
			return 0, r.err
		}
		b[0] = r.b
		return 1, nil
	case <-time.After(t.timeout):
		return 0, nil
	}
}

// Write sends b to the slave side.
func (t *Pty) Write(b []byte) (int, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	return t.p.Write(b)
}

// Flush is a no-op: a pseudo-terminal has no line to drain.
func (t *Pty) Flush() error {
	return nil
}
