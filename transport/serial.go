package transport

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// PortConfig describes a serial device and its line settings.
type PortConfig struct {
	// Name is the device path, e.g. /dev/ttyUSB0 or COM3 (required)
	Name string
	// BaudRate is the line speed (default: 9600)
	BaudRate int
	// DataBits is the character size, 5 to 8 (default: 8)
	DataBits int
	// Parity is one of N, E, O, M, S (default: N)
	Parity string
	// StopBits is one of 1, 1.5, 2 (default: 1)
	StopBits string
	// ReadTimeout bounds a single Read (default: DefaultReadTimeout)
	ReadTimeout time.Duration
}

// ParseParity converts a parity name. Both the initial and the full English
// word are accepted, in any case.
func ParseParity(s string) (serial.Parity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "N", "NONE":
		return serial.NoParity, nil
	case "E", "EVEN":
		return serial.EvenParity, nil
	case "O", "ODD":
		return serial.OddParity, nil
	case "M", "MARK":
		return serial.MarkParity, nil
	case "S", "SPACE":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("%w: %q", ErrInvalidParity, s)
	}
}

// ParseStopBits converts a stop bits value.
func ParseStopBits(s string) (serial.StopBits, error) {
	switch strings.TrimSpace(s) {
	case "", "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	default:
		return serial.OneStopBit, fmt.Errorf("%w: %q", ErrInvalidStopBits, s)
	}
}

// Mode translates the configuration into serial line settings, filling in
// defaults.
func (c PortConfig) Mode() (*serial.Mode, error) {
	parity, err := ParseParity(c.Parity)
	if err != nil {
		return nil, err
	}
	stopBits, err := ParseStopBits(c.StopBits)
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		Parity:   parity,
		StopBits: stopBits,
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = 9600
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	return mode, nil
}

// Serial is a serial device opened for a session.
type Serial struct {
	port serial.Port
	name string
}

// OpenSerial opens and configures the device named in cfg.
func OpenSerial(cfg PortConfig) (*Serial, error) {
	if cfg.Name == "" {
		return nil, ErrPortRequired
	}
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(cfg.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Name, err)
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Name, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input of %s: %w", cfg.Name, err)
	}
	return &Serial{port: port, name: cfg.Name}, nil
}

// Name returns the device path.
func (s *Serial) Name() string {
	return s.name
}

// Read reads received bytes; it returns (0, nil) when the read timeout
// expires first.
func (s *Serial) Read(b []byte) (int, error) {
	return s.port.Read(b)
}

// Write sends b.
func (s *Serial) Write(b []byte) (int, error) {
	return s.port.Write(b)
}

// Flush waits until written bytes have left the device.
func (s *Serial) Flush() error {
	return s.port.Drain()
}

// Close releases the device.
func (s *Serial) Close() error {
	return s.port.Close()
}

// ListPorts returns the serial devices present on the system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
