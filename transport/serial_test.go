package transport

import (
	"errors"
	"testing"

	"go.bug.st/serial"
)

func TestParseParity(t *testing.T) {
	tests := []struct {
		in      string
		want    serial.Parity
		wantErr bool
	}{
		{"", serial.NoParity, false},
		{"N", serial.NoParity, false},
		{"even", serial.EvenParity, false},
		{"O", serial.OddParity, false},
		{"mark", serial.MarkParity, false},
		{"S", serial.SpaceParity, false},
		{"X", serial.NoParity, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseParity(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseParity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidParity) {
				t.Errorf("ParseParity(%q) error = %v, want ErrInvalidParity", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseParity(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseStopBits(t *testing.T) {
	tests := []struct {
		in      string
		want    serial.StopBits
		wantErr bool
	}{
		{"", serial.OneStopBit, false},
		{"1", serial.OneStopBit, false},
		{"1.5", serial.OnePointFiveStopBits, false},
		{"2", serial.TwoStopBits, false},
		{"3", serial.OneStopBit, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStopBits(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStopBits(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStopBits(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPortConfigModeDefaults(t *testing.T) {
	mode, err := PortConfig{Name: "/dev/null"}.Mode()
	if err != nil {
		t.Fatalf("Mode() error = %v", err)
	}
	if mode.BaudRate != 9600 {
		t.Errorf("BaudRate = %d, want 9600", mode.BaudRate)
	}
	if mode.DataBits != 8 {
		t.Errorf("DataBits = %d, want 8", mode.DataBits)
	}
	if mode.Parity != serial.NoParity || mode.StopBits != serial.OneStopBit {
		t.Errorf("Mode() = %+v, want 8N1", mode)
	}

	mode, err = PortConfig{Name: "/dev/null", BaudRate: 115200, DataBits: 7, Parity: "E", StopBits: "2"}.Mode()
	if err != nil {
		t.Fatalf("Mode() error = %v", err)
	}
	if mode.BaudRate != 115200 || mode.DataBits != 7 || mode.Parity != serial.EvenParity || mode.StopBits != serial.TwoStopBits {
		t.Errorf("Mode() = %+v, want 115200 7E2", mode)
	}
}

func TestOpenSerialRequiresName(t *testing.T) {
	if _, err := OpenSerial(PortConfig{}); !errors.Is(err, ErrPortRequired) {
		t.Errorf("OpenSerial() error = %v, want ErrPortRequired", err)
	}
	if _, err := OpenSerial(PortConfig{Name: "x", Parity: "bogus"}); !errors.Is(err, ErrInvalidParity) {
		t.Errorf("OpenSerial() error = %v, want ErrInvalidParity", err)
	}
}
