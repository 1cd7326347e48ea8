// Package metrics provides Prometheus metrics for w24fs nodes.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	connectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "w24_connections_total",
			Help: "Accepted client connections by routing decision",
		},
		[]string{"route"},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "w24_commands_total",
			Help: "Commands handled locally by outcome",
		},
		[]string{"command", "outcome"},
	)

	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "w24_command_duration_seconds",
			Help:    "Time spent executing a command locally",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	archiveBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "w24_archive_bytes_total",
			Help: "Compressed bytes written to archives",
		},
	)

	mirrorForwards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "w24_mirror_forward_total",
			Help: "Commands relayed to a mirror by outcome",
		},
		[]string{"target", "outcome"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "w24_active_connections",
			Help: "Client connections currently open",
		},
	)
)

// RecordConnection counts an accepted connection.
func RecordConnection(route string) {
	connectionsTotal.WithLabelValues(route).Inc()
}

// ConnectionOpened and ConnectionClosed track the open-connection gauge.
func ConnectionOpened() { activeConnections.Inc() }
func ConnectionClosed() { activeConnections.Dec() }

// RecordCommand counts a locally executed command.
func RecordCommand(command, outcome string, d time.Duration) {
	commandsTotal.WithLabelValues(command, outcome).Inc()
	commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

func RecordArchive(bytes int64) {
	if bytes > 0 {
		archiveBytes.Add(float64(bytes))
	}
}

// RecordForward counts a relay attempt to a mirror.
func RecordForward(target string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	mirrorForwards.WithLabelValues(target, outcome).Inc()
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
