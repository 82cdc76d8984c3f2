// Package metrics exposes Icepeak's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DataFileBytes is the size of the last-written snapshot file.
	DataFileBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "icepeak_data_file_bytes",
			Help: "Size in bytes of the last snapshot written to the data file",
		},
	)

	// JournalBytesWritten counts an estimate of the bytes appended to the
	// journal (encoded value size plus a per-entry allowance for op and path).
	JournalBytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "icepeak_journal_bytes_written_total",
			Help: "Estimated total bytes appended to the write-ahead journal",
		},
	)

	// SnapshotBytesWritten counts bytes written by snapshot syncs.
	SnapshotBytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "icepeak_snapshot_bytes_written_total",
			Help: "Total bytes written across all snapshot syncs",
		},
	)

	// Subscribers is the current number of active subscriptions.
	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "icepeak_subscribers",
			Help: "Current number of active subscriptions",
		},
	)

	// ModificationsTotal counts applied modifications.
	ModificationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "icepeak_modifications_total",
			Help: "Total number of modifications applied to the document",
		},
	)

	// APIRequestsTotal counts HTTP requests by method and status.
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icepeak_api_requests_total",
			Help: "Total number of HTTP API requests by method and status",
		},
		[]string{"method", "status"},
	)

	// APIRequestDuration times HTTP requests by method.
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "icepeak_api_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(DataFileBytes)
	prometheus.MustRegister(JournalBytesWritten)
	prometheus.MustRegister(SnapshotBytesWritten)
	prometheus.MustRegister(Subscribers)
	prometheus.MustRegister(ModificationsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
