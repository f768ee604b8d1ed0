// Package metrics registers the devicehub Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook ingestion metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicehub_webhook_events_total",
			Help: "Webhook events received, by endpoint and outcome (accepted, filtered, invalid)",
		},
		[]string{"endpoint", "outcome"},
	)

	NormalizationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devicehub_normalization_errors_total",
			Help: "Total number of webhook bodies rejected by the normalizer",
		},
	)

	OTAReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicehub_ota_reports_total",
			Help: "OTA reports by result (progress, success, error, invalid_payload, invalid_progress, unknown_stage)",
		},
		[]string{"result"},
	)

	// Per stage metrics
	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicehub_stage_failures_total",
			Help: "Best-effort pipeline stage failures",
		},
		[]string{"stage"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devicehub_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicehub_notifications_total",
			Help: "Notifications published, by channel and status",
		},
		[]string{"channel", "status"},
	)

	// Live stream metrics
	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devicehub_stream_clients",
			Help: "Connected WebSocket subscribers",
		},
	)

	StreamDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devicehub_stream_dropped_total",
			Help: "Messages dropped because a subscriber's send buffer was full",
		},
	)

	// Sweeper metrics
	StaleDevicesMarked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devicehub_stale_devices_marked_total",
			Help: "Devices marked offline by the stale sweeper",
		},
	)
)
