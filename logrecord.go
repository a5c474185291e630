package serdbg

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Direction tells whether a log record was received or transmitted.
type Direction int

const (
	// DirRx is received traffic
	DirRx Direction = iota
	// DirTx is transmitted traffic
	DirTx
)

// String returns "RX" or "TX".
func (d Direction) String() string {
	if d == DirTx {
		return "TX"
	}
	return "RX"
}

// LogRecord is one line of the traffic log.
type LogRecord struct {
	Session string
	Dir     Direction
	// At is the clock time of the last byte of the record in nanoseconds
	At     int64
	Data   []byte
	Detail string
}

// FormatTimestamp renders a clock time as hh:mm:ss.mmm.uuu. Hours are not
// wrapped at 24.
func FormatTimestamp(ns int64) string {
	us := ns / 1000
	ms := us / 1000
	sec := ms / 1000
	mins := sec / 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d.%03d", mins/60, mins%60, sec%60, ms%1000, us%1000)
}

// FormatLogLine renders rec as a log line:
//
//	[00:00:01.250.000] [RX]    0102FF                                                       (poll)
func FormatLogLine(rec LogRecord) string {
	data := strings.ToUpper(hex.EncodeToString(rec.Data))
	line := fmt.Sprintf("[%s] [%-2s]    %-60s", FormatTimestamp(rec.At), rec.Dir, data)
	if rec.Detail != "" {
		line += " (" + rec.Detail + ")"
	}
	return line
}

// LogSink receives completed log records.
type LogSink interface {
	Log(rec LogRecord) error
}

// LogSinkFunc adapts a plain function to the LogSink interface.
type LogSinkFunc func(rec LogRecord) error

// Log calls f(rec).
func (f LogSinkFunc) Log(rec LogRecord) error {
	return f(rec)
}

// WriterSink writes formatted log lines to an io.Writer.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink returns a sink writing one line per record to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Log implements LogSink.
func (s *WriterSink) Log(rec LogRecord) error {
	_, err := io.WriteString(s.w, FormatLogLine(rec)+"\n")
	return err
}

// MultiSink fans a record out to every sink. All sinks are called even when
// one fails.
type MultiSink []LogSink

// Log implements LogSink.
func (ms MultiSink) Log(rec LogRecord) error {
	var errs []error
	for _, s := range ms {
		if err := s.Log(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
