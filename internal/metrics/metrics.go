package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	LastAppliedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swapd_last_applied_block",
			Help: "Height of the last block applied to the store",
		},
	)

	BlocksApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swapd_blocks_applied_total",
			Help: "Total number of blocks applied",
		},
	)

	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapd_events_applied_total",
			Help: "Total number of events applied by event name",
		},
		[]string{"event"},
	)

	BlockApplyTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swapd_block_apply_duration_seconds",
			Help:    "Time taken to apply one block transactionally",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Archive client metrics
	archiveRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapd_archive_requests_total",
			Help: "Total number of archive requests by operation",
		},
		[]string{"operation"},
	)

	archiveErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapd_archive_errors_total",
			Help: "Total number of archive errors by operation",
		},
		[]string{"operation"},
	)

	archiveRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapd_archive_retries_total",
			Help: "Total number of archive request retries by operation",
		},
		[]string{"operation"},
	)

	archiveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swapd_archive_request_duration_seconds",
			Help:    "Duration of archive requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Quote aggregation metrics
	QuoteRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swapd_quote_requests_total",
			Help: "Total number of quote aggregation requests",
		},
	)

	QuoteResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapd_quote_responses_total",
			Help: "Total number of provider quote responses by outcome",
		},
		[]string{"outcome"},
	)

	ConnectedProviders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swapd_connected_quote_providers",
			Help: "Number of currently connected quote providers",
		},
	)

	QuoteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swapd_quote_aggregation_duration_seconds",
			Help:    "Time taken to resolve a quote aggregation",
			Buckets: prometheus.DefBuckets,
		},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swapd_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swapd_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swapd_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func ArchiveRequestInc(operation string) {
	archiveRequests.WithLabelValues(operation).Inc()
}

func ArchiveErrorInc(operation string) {
	archiveErrors.WithLabelValues(operation).Inc()
}

func ArchiveRetryInc(operation string) {
	archiveRetries.WithLabelValues(operation).Inc()
}

func ArchiveRequestDuration(operation string, duration time.Duration) {
	archiveDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func QuoteResponseInc(outcome string) {
	QuoteResponses.WithLabelValues(outcome).Inc()
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
