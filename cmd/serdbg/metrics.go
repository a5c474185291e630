package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jaracil/serdbg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerMetrics exposes the session metrics as collectors that read a
// fresh snapshot on every scrape.
func registerMetrics(reg prometheus.Registerer, sess *serdbg.Session, msgr *serdbg.Messenger) error {
	labels := prometheus.Labels{"session": sess.Id()}
	counter := func(name, help string, f func(m *serdbg.Metrics) int) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "serdbg",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 {
			return float64(f(sess.MetricsSync()))
		})
	}

	collectors := []prometheus.Collector{
		counter("rx_bytes_total", "Bytes received from the line.", func(m *serdbg.Metrics) int { return m.RxBytes }),
		counter("tx_bytes_total", "Bytes written to the line.", func(m *serdbg.Metrics) int { return m.TxBytes }),
		counter("matches_total", "Frames that matched an active outcome.", func(m *serdbg.Metrics) int { return m.Matches }),
		counter("frames_total", "Transmissions, manual and sequenced.", func(m *serdbg.Metrics) int { return m.Frames }),
		counter("analyze_errors_total", "Analyzer hooks that returned an error.", func(m *serdbg.Metrics) int { return m.AnalyzeErrors }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "serdbg",
			Name:        "dropped_commands_total",
			Help:        "Requests dropped because the command queue was full.",
			ConstLabels: labels,
		}, func() float64 {
			return float64(msgr.Dropped())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "serdbg",
			Name:        "session_status",
			Help:        "Session status (0 idle, 1 running, 2 closed).",
			ConstLabels: labels,
		}, func() float64 {
			return float64(sess.StatusSync())
		}),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// serveMetrics serves /metrics on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics endpoint failed", "error", err)
	}
}
