package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jaracil/serdbg"
	"github.com/jaracil/serdbg/capture"
	"github.com/jaracil/serdbg/internal/logging"
	"github.com/jaracil/serdbg/tables"
	"github.com/jaracil/serdbg/transport"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
)

// Options are the command line flags. Unset flags leave the settings file
// and environment values in place.
type Options struct {
	Config      string        `short:"c" long:"config" description:"Settings file (yaml, toml or json)"`
	Tables      string        `short:"t" long:"tables" description:"Table file with send, autosend and autoresp sections"`
	Port        string        `short:"p" long:"port" description:"Serial device"`
	Baud        int           `short:"b" long:"baud" description:"Baud rate"`
	DataBits    int           `long:"databits" description:"Data bits (5-8)"`
	Parity      string        `long:"parity" description:"Parity (N, E, O, M, S)"`
	StopBits    string        `long:"stopbits" description:"Stop bits (1, 1.5, 2)"`
	Pty         bool          `long:"pty" description:"Open a pseudo-terminal instead of a serial device"`
	List        bool          `short:"l" long:"list" description:"List serial devices and exit"`
	TxDelay     time.Duration `long:"tx-delay" description:"Hold manual sends until the line is quiet this long"`
	NoAutoStart bool          `long:"no-autostart" description:"Do not start the enabled autosend script"`
	MetricsAddr string        `long:"metrics-addr" description:"Serve Prometheus metrics on this address"`
	Capture     string        `long:"capture" description:"Record the traffic log in this SQLite file"`
	LogLevel    string        `long:"log-level" description:"Log level (debug, info, warn, error)"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if opts.List {
		ports, err := transport.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "serdbg: %v\n", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	if err := run(&opts); err != nil {
		fmt.Fprintf(os.Stderr, "serdbg: %v\n", err)
		os.Exit(1)
	}
}

func run(opts *Options) error {
	settings, err := LoadSettings(opts.Config)
	if err != nil {
		return err
	}
	settings.Override(opts)
	if err := settings.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(settings.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(level)

	defs, err := tables.LoadDefinitions(settings.Tables)
	if err != nil {
		return err
	}
	engine, report, err := serdbg.Build(defs)
	if err != nil {
		return err
	}
	if len(report.ForcedOutcomes) > 0 {
		logger.Warn("outcomes disabled, another outcome on the same pattern is enabled", "indices", report.ForcedOutcomes)
	}
	if len(report.ForcedScripts) > 0 {
		logger.Warn("scripts disabled, only one script may start automatically", "indices", report.ForcedScripts)
	}

	tr, err := openTransport(settings, logger)
	if err != nil {
		return err
	}

	var sinks serdbg.MultiSink
	sinks = append(sinks, serdbg.NewWriterSink(os.Stdout))
	if settings.Capture != "" {
		store, err := capture.Open(settings.Capture)
		if err != nil {
			tr.Close()
			return err
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	clock := serdbg.NewClock()
	msgr := serdbg.NewMessenger(serdbg.DefaultQueueSize, logger)
	sess, err := serdbg.NewSession(&serdbg.SessionConfig{
		Transport: tr,
		Engine:    engine,
		Messenger: msgr,
		Clock:     clock,
		TxDelay:   settings.TxDelay,
		AutoStart: settings.AutoStart,
		StatusTransition: func(s *serdbg.Session, prev, next serdbg.Status) {
			logger.Debug("session status", "session", s.Id(), "from", prev.String(), "to", next.String())
		},
		Logger: logger,
	})
	if err != nil {
		tr.Close()
		return err
	}
	defer sess.CloseSync()

	mon, err := serdbg.NewMonitor(&serdbg.MonitorConfig{
		Messenger: msgr,
		Sink:      sinks,
		Session:   sess.Id(),
		Clock:     clock,
		IdleFlush: settings.IdleFlush,
		OnEvent:   eventLogger(logger, msgr),
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	monDone := make(chan struct{})
	go func() {
		defer close(monDone)
		mon.Run()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if settings.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := registerMetrics(reg, sess, msgr); err != nil {
			return err
		}
		go serveMetrics(ctx, settings.MetricsAddr, reg, logger)
	}

	con := &console{msgr: msgr, sess: sess, out: os.Stderr, timeout: 2 * time.Second}
	go func() {
		if err := con.run(os.Stdin); err != nil {
			logger.Error("console failed", "error", err)
		}
		msgr.Exit()
	}()

	select {
	case <-sess.Done():
	case <-msgr.Done():
		<-sess.Done()
	}
	msgr.Exit()
	<-monDone
	return nil
}

func openTransport(s *Settings, logger *slog.Logger) (serdbg.Transport, error) {
	if s.Pty {
		p, err := transport.OpenPty(0)
		if err != nil {
			return nil, err
		}
		logger.Info("pseudo-terminal ready", "path", p.Name())
		return p, nil
	}
	port, err := transport.OpenSerial(transport.PortConfig{
		Name:     s.Port,
		BaudRate: s.Baud,
		DataBits: s.DataBits,
		Parity:   s.Parity,
		StopBits: s.StopBits,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("serial port open", "port", port.Name(), "baud", s.Baud)
	return port, nil
}

func eventLogger(logger *slog.Logger, msgr *serdbg.Messenger) func(ev serdbg.Event) {
	return func(ev serdbg.Event) {
		switch ev.Kind {
		case serdbg.EvtDisconnected:
			if ev.Err != nil {
				logger.Error("disconnected", "error", ev.Err)
			} else {
				logger.Info("disconnected")
			}
			msgr.Exit()
		case serdbg.EvtUpdateApplied:
			if ev.Err != nil {
				logger.Warn("request failed", "command", ev.Command.String(), "error", ev.Err)
			} else if len(ev.Forced) > 0 {
				logger.Warn("outcomes disabled", "indices", ev.Forced)
			}
		case serdbg.EvtScript:
			if ev.Script == "" {
				logger.Info("autosend stopped")
			} else {
				logger.Info("autosend running", "script", ev.Script)
			}
		}
	}
}
