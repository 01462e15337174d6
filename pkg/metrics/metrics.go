// Package metrics provides Prometheus metrics for sync runs and transfers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transfer outcomes.
const (
	OutcomeDone   = "done"
	OutcomeFailed = "failed"
	OutcomePaused = "paused"
)

var (
	// Transfer metrics
	transferBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoard_transfer_bytes_total",
			Help: "Total bytes written to partial files",
		},
		[]string{"provider"},
	)

	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoard_transfers_total",
			Help: "Total number of finished transfer intents by outcome",
		},
		[]string{"provider", "outcome"},
	)

	transferRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoard_transfer_retries_total",
			Help: "Total number of transfer retries by error category",
		},
		[]string{"provider", "reason"},
	)

	transfersInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hoard_transfers_in_flight",
			Help: "Number of transfer intents currently held by a worker",
		},
	)

	transferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hoard_transfer_duration_seconds",
			Help:    "Time from admission to completion of a transfer intent",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"provider"},
	)

	// Sync metrics
	syncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoard_sync_runs_total",
			Help: "Total number of provider sync runs by result",
		},
		[]string{"provider", "result"},
	)

	assetsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoard_assets_upserted_total",
			Help: "Total number of assets upserted by the reconciler",
		},
		[]string{"provider"},
	)

	intentsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoard_intents_emitted_total",
			Help: "Total number of transfer intents emitted by the reconciler",
		},
		[]string{"provider"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordBytes adds n downloaded bytes for provider.
func RecordBytes(provider string, n int64) {
	transferBytes.WithLabelValues(provider).Add(float64(n))
}

// RecordTransfer records a finished intent.
func RecordTransfer(provider, outcome string, duration time.Duration) {
	transfersTotal.WithLabelValues(provider, outcome).Inc()
	if outcome == OutcomeDone {
		transferDuration.WithLabelValues(provider).Observe(duration.Seconds())
	}
}

// RecordRetry records a retried transfer attempt.
func RecordRetry(provider, reason string) {
	transferRetries.WithLabelValues(provider, reason).Inc()
}

// IncInFlight marks an intent as admitted by a worker.
func IncInFlight() { transfersInFlight.Inc() }

// DecInFlight marks an intent as released by a worker.
func DecInFlight() { transfersInFlight.Dec() }

// RecordSync records the result of syncing one provider.
func RecordSync(provider string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	syncRuns.WithLabelValues(provider, result).Inc()
}

// RecordAssetUpserted counts an asset upsert.
func RecordAssetUpserted(provider string) {
	assetsUpserted.WithLabelValues(provider).Inc()
}

// RecordIntent counts an emitted transfer intent.
func RecordIntent(provider string) {
	intentsEmitted.WithLabelValues(provider).Inc()
}
