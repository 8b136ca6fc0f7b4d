// Package telemetry provides logging setup and Prometheus metrics for the
// instance action log service.
//
// Metrics are registered against the default Prometheus registry and served on
// the side-channel listener started by cmd/server:
//
//	GET http://<host>:<IAL_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// HTTP metrics use the gin route template rather than the raw URL so instance
// UUIDs in paths do not create unbounded label cardinality.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/instance-action-log/instance-action-log/internal/safego"
)

// Record outcomes used as the "outcome" label of ActionRecordsTotal.
const (
	OutcomeRecorded         = "recorded"
	OutcomeAppendFailed     = "append_failed"
	OutcomeExtractionFailed = "extraction_failed"
	OutcomeSkipped          = "skipped"
)

// HTTP metrics, labelled by method, route template and status code.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// ActionRecordsTotal counts interceptions by action and outcome. A record with
// an extraction warning is still counted once, as extraction_failed.
//
//	sum by (action) (rate(instance_action_log_records_total{outcome="recorded"}[5m]))
//	increase(instance_action_log_records_total{outcome="append_failed"}[15m]) > 0
var ActionRecordsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "instance_action_log_records_total",
		Help: "Total number of instance action interceptions, by action and outcome.",
	},
	[]string{"action", "outcome"},
)

// ShipperErrorsTotal counts failed deliveries to external audit destinations.
var ShipperErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "instance_action_log_shipper_errors_total",
		Help: "Total number of failed audit shipments, by shipper.",
	},
	[]string{"shipper"},
)

// UpstreamErrorsTotal counts compute API calls that never produced a response.
var UpstreamErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "compute_upstream_errors_total",
		Help: "Total number of compute API requests that failed before a response was received.",
	},
)

// DBOpenConnections tracks sql.DB pool usage, sampled by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every interval until ctx is
// cancelled or the database stops answering pings.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	safego.Go("db-stats", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := db.PingContext(ctx); err != nil {
				if ctx.Err() == nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				}
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	})
}
