// Package transport opens the byte streams a debugging session runs on: real
// serial devices and pseudo-terminals. Every transport reads with a short
// timeout and reports it as (0, nil) so that the session loop keeps ticking
// while the line is quiet.
package transport

import (
	"errors"
	"time"
)

// DefaultReadTimeout bounds a single Read.
const DefaultReadTimeout = 10 * time.Millisecond

var (
	// ErrPortRequired is returned when no device name is given
	ErrPortRequired = errors.New("port name required")
	// ErrInvalidParity is returned for an unknown parity name
	ErrInvalidParity = errors.New("invalid parity")
	// ErrInvalidStopBits is returned for an unknown stop bits value
	ErrInvalidStopBits = errors.New("invalid stop bits")
	// ErrClosed is returned when using a closed transport
	ErrClosed = errors.New("transport closed")
)
