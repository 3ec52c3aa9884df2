package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Global logger instance, a no-op until Init installs the real one
	Logger = zap.NewNop()

	// Metrics
	moderationTriggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_triggers_total",
			Help: "Total number of messages that triggered moderation",
		},
		[]string{"reason"},
	)

	membershipTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_transitions_total",
			Help: "Total number of recognized membership transitions",
		},
		[]string{"action"},
	)

	syncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of group sync runs",
		},
		[]string{"kind", "status"},
	)

	eventProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_processing_duration_seconds",
			Help:    "Time spent processing inbound events",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func Init(ctx context.Context, metricsAddr string) error {
	// Initialize logger
	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	// Register metrics
	prometheus.MustRegister(moderationTriggersTotal)
	prometheus.MustRegister(membershipTransitionsTotal)
	prometheus.MustRegister(syncRunsTotal)
	prometheus.MustRegister(eventProcessingDuration)

	// Setup OpenTelemetry (simplified setup)
	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	// Start Prometheus metrics endpoint
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	return nil
}

// RecordTrigger records a message that triggered moderation
func RecordTrigger(reason string) {
	moderationTriggersTotal.WithLabelValues(reason).Inc()
}

// RecordTransition records a recognized membership transition
func RecordTransition(action string) {
	membershipTransitionsTotal.WithLabelValues(action).Inc()
}

// RecordSyncRun records the outcome of one sync run
func RecordSyncRun(kind, status string) {
	syncRunsTotal.WithLabelValues(kind, status).Inc()
}

// StartEventProcessing returns a function to record event processing duration
// under the status label the caller settles on
func StartEventProcessing() func(status string) {
	start := time.Now()
	return func(status string) {
		eventProcessingDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}
