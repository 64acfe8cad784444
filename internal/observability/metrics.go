package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Metrics struct {
	activeSessions  prometheus.Gauge
	eventsTotal     *prometheus.CounterVec
	broadcastFanout prometheus.Histogram
	messagesReaped  prometheus.Counter
	logger          *zap.Logger
}

func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "societychat_active_sessions",
				Help: "Number of connected chat sessions",
			},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "societychat_events_total",
				Help: "Total client events processed, by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		broadcastFanout: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "societychat_broadcast_fanout",
				Help:    "Sessions reached per broadcast",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		messagesReaped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "societychat_messages_reaped_total",
				Help: "Expired messages removed by the reaper",
			},
		),
		logger: logger,
	}

	prometheus.MustRegister(
		m.activeSessions,
		m.eventsTotal,
		m.broadcastFanout,
		m.messagesReaped,
	)

	return m
}

func (m *Metrics) SessionOpened() {
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	m.activeSessions.Dec()
}

func (m *Metrics) ObserveEvent(eventType, outcome string) {
	m.eventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) ObserveFanout(delivered int) {
	m.broadcastFanout.Observe(float64(delivered))
}

func (m *Metrics) AddReaped(count int64) {
	m.messagesReaped.Add(float64(count))
}

func (m *Metrics) Start(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	m.logger.Info("metrics server starting", zap.Int("port", port))

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
