package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	ConnectionsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orion_connections_pending",
			Help: "Connections accepted but not yet bound to a player",
		},
	)
	ConnectionsEstablished = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orion_connections_established",
			Help: "Connections bound to a player",
		},
	)
	FramesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_frames_dispatched_total",
			Help: "Frames routed to a message handler",
		},
		[]string{"route"},
	)
	FramesDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orion_frames_discarded_total",
			Help: "Input units dropped by the dispatcher",
		},
		[]string{"reason"},
	)
	SavesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orion_saves_written_total",
			Help: "Save files written by the server",
		},
	)
)

func init() {
	prometheus.MustRegister(ConnectionsPending)
	prometheus.MustRegister(ConnectionsEstablished)
	prometheus.MustRegister(FramesDispatched)
	prometheus.MustRegister(FramesDiscarded)
	prometheus.MustRegister(SavesWritten)
}

// StartMetricsServer serves the prometheus registry on /metrics until ctx is
// done. A port of zero disables it.
func StartMetricsServer(ctx context.Context, logger *logrus.Logger, port int) error {
	if port == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.Infof("serving metrics on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
