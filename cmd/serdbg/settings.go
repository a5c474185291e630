package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the resolved process configuration.
type Settings struct {
	Tables      string
	Port        string
	Baud        int
	DataBits    int
	Parity      string
	StopBits    string
	Pty         bool
	TxDelay     time.Duration
	IdleFlush   time.Duration
	AutoStart   bool
	MetricsAddr string
	Capture     string
	LogLevel    string
}

// LoadSettings loads the settings file (if any) using viper.
// CLI flags > environment > config file > defaults precedence; flags are
// applied afterwards with Override.
func LoadSettings(configPath string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("baud", 9600)
	v.SetDefault("databits", 8)
	v.SetDefault("parity", "N")
	v.SetDefault("stopbits", "1")
	v.SetDefault("tx_delay", "0s")
	v.SetDefault("idle_flush", "1s")
	v.SetDefault("autostart", true)
	v.SetDefault("log_level", "info")

	// Bind environment variables with SERDBG_ prefix
	v.SetEnvPrefix("SERDBG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"tables", "port", "pty", "metrics_addr", "capture"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	s := &Settings{
		Tables:      v.GetString("tables"),
		Port:        v.GetString("port"),
		Baud:        v.GetInt("baud"),
		DataBits:    v.GetInt("databits"),
		Parity:      v.GetString("parity"),
		StopBits:    v.GetString("stopbits"),
		Pty:         v.GetBool("pty"),
		TxDelay:     v.GetDuration("tx_delay"),
		IdleFlush:   v.GetDuration("idle_flush"),
		AutoStart:   v.GetBool("autostart"),
		MetricsAddr: v.GetString("metrics_addr"),
		Capture:     v.GetString("capture"),
		LogLevel:    v.GetString("log_level"),
	}
	return s, nil
}

// Override applies the command line options that were given.
func (s *Settings) Override(o *Options) {
	if o.Tables != "" {
		s.Tables = o.Tables
	}
	if o.Port != "" {
		s.Port = o.Port
	}
	if o.Baud != 0 {
		s.Baud = o.Baud
	}
	if o.DataBits != 0 {
		s.DataBits = o.DataBits
	}
	if o.Parity != "" {
		s.Parity = o.Parity
	}
	if o.StopBits != "" {
		s.StopBits = o.StopBits
	}
	if o.Pty {
		s.Pty = true
	}
	if o.TxDelay != 0 {
		s.TxDelay = o.TxDelay
	}
	if o.NoAutoStart {
		s.AutoStart = false
	}
	if o.MetricsAddr != "" {
		s.MetricsAddr = o.MetricsAddr
	}
	if o.Capture != "" {
		s.Capture = o.Capture
	}
	if o.LogLevel != "" {
		s.LogLevel = o.LogLevel
	}
}

// Validate checks the settings needed to start a session.
func (s *Settings) Validate() error {
	if s.Tables == "" {
		return fmt.Errorf("a table file is required")
	}
	if s.Port == "" && !s.Pty {
		return fmt.Errorf("either a port or --pty is required")
	}
	if s.DataBits < 5 || s.DataBits > 8 {
		return fmt.Errorf("databits must be between 5 and 8, got %d", s.DataBits)
	}
	if s.TxDelay < 0 {
		return fmt.Errorf("tx_delay must not be negative, got %v", s.TxDelay)
	}
	if s.IdleFlush <= 0 {
		return fmt.Errorf("idle_flush must be positive, got %v", s.IdleFlush)
	}
	return nil
}
