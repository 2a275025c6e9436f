// Package metrics provides Prometheus metrics for the Catalog Mirror.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the Catalog Mirror.
type Metrics struct {
	// Record metrics
	RecordsMigrated *prometheus.CounterVec
	RecordsSkipped  *prometheus.CounterVec
	RecordsFailed   *prometheus.CounterVec

	// File transfer metrics
	FilesTransferred prometheus.Counter
	FilesSkipped     prometheus.Counter
	FilesFailed      prometheus.Counter
	TransferRetries  prometheus.Counter
	BytesTransferred prometheus.Counter

	// Timing metrics
	RecordMigrationDuration prometheus.Histogram

	// Concurrency metrics
	InFlightRecords prometheus.Gauge
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "catalog_mirror"
	}

	m := &Metrics{
		RecordsMigrated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_migrated_total",
				Help:      "Total number of records migrated and committed",
			},
			[]string{"collection"},
		),
		RecordsSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_skipped_total",
				Help:      "Total number of records skipped (already migrated)",
			},
			[]string{"collection"},
		),
		RecordsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_failed_total",
				Help:      "Total number of records that failed migration",
			},
			[]string{"collection"},
		),
		FilesTransferred: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_transferred_total",
				Help:      "Total number of files transferred to the artifact store",
			},
		),
		FilesSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_skipped_total",
				Help:      "Total number of files skipped (already present)",
			},
		),
		FilesFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_failed_total",
				Help:      "Total number of files that exhausted transfer retries",
			},
		),
		TransferRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_retries_total",
				Help:      "Total number of transfer retry attempts",
			},
		),
		BytesTransferred: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_transferred_total",
				Help:      "Total bytes streamed to the artifact store",
			},
		),
		RecordMigrationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "record_migration_duration_seconds",
				Help:      "Time to migrate one record (metadata + files + commit)",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
			},
		),
		InFlightRecords: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_records",
				Help:      "Number of record migrations currently running",
			},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncRecordsMigrated increments the records migrated counter.
func (m *Metrics) IncRecordsMigrated(collection string) {
	m.RecordsMigrated.WithLabelValues(collection).Inc()
}

// IncRecordsSkipped increments the records skipped counter.
func (m *Metrics) IncRecordsSkipped(collection string) {
	m.RecordsSkipped.WithLabelValues(collection).Inc()
}

// IncRecordsFailed increments the records failed counter.
func (m *Metrics) IncRecordsFailed(collection string) {
	m.RecordsFailed.WithLabelValues(collection).Inc()
}

// IncFilesTransferred increments the files transferred counter.
func (m *Metrics) IncFilesTransferred() {
	m.FilesTransferred.Inc()
}

// IncFilesSkipped increments the files skipped counter.
func (m *Metrics) IncFilesSkipped() {
	m.FilesSkipped.Inc()
}

// IncFilesFailed increments the files failed counter.
func (m *Metrics) IncFilesFailed() {
	m.FilesFailed.Inc()
}

// IncTransferRetries increments the transfer retries counter.
func (m *Metrics) IncTransferRetries() {
	m.TransferRetries.Inc()
}

// AddBytesTransferred adds to the bytes transferred counter.
func (m *Metrics) AddBytesTransferred(bytes float64) {
	m.BytesTransferred.Add(bytes)
}

// ObserveRecordMigrationDuration records one record's total migration time.
func (m *Metrics) ObserveRecordMigrationDuration(seconds float64) {
	m.RecordMigrationDuration.Observe(seconds)
}

// SetInFlightRecords sets the number of in-flight record migrations.
func (m *Metrics) SetInFlightRecords(count float64) {
	m.InFlightRecords.Set(count)
}
