// Package metrics provides Prometheus instrumentation for csvload.
//
// # Basic Usage
//
//	// Count rows as they move through a load
//	metrics.Rows.WithLabelValues(metrics.StageEmitted).Inc()
//
//	// Time how long a location takes to open
//	timer := metrics.NewTimer()
//	res, err := resolver.Open(ctx, location, nil)
//	metrics.OpenLatency.WithLabelValues(res.Scheme).Observe(timer.Stop().Seconds())
//
//	// Track throughput of a sink
//	tracker := metrics.NewThroughputTracker("jsonl")
//	tracker.Increment(1)
//	rate := tracker.GetAndReset()
//
// All metrics register with the default Prometheus registry on package load.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Row stages used as the "stage" label of Rows
const (
	StageRead    = "read"
	StageSkipped = "skipped"
	StageEmitted = "emitted"
)

var (
	// Rows counts data rows by stage.
	// Labels: stage (read/skipped/emitted)
	Rows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csvload_rows_total",
			Help: "Total number of data rows by stage",
		},
		[]string{"stage"},
	)

	// CastFailures counts raw values that could not be cast.
	// Labels: type (int/float/boolean), mode (strict/lenient)
	CastFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csvload_cast_failures_total",
			Help: "Total number of values that failed to cast to their column type",
		},
		[]string{"type", "mode"},
	)

	// BytesFetched counts bytes read from resolved locations, before unwrapping.
	// Labels: scheme (file/http/https/s3/gs)
	BytesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csvload_bytes_fetched_total",
			Help: "Total number of bytes read from resolved locations",
		},
		[]string{"scheme"},
	)

	// ResolveErrors counts failed resolutions.
	// Labels: scheme, type (error type)
	ResolveErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csvload_resolve_errors_total",
			Help: "Total number of failed location resolutions",
		},
		[]string{"scheme", "type"},
	)

	// OpenLatency tracks how long resolving a location takes, in seconds.
	// Labels: scheme
	OpenLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "csvload_open_latency_seconds",
			Help:    "Time to open a location in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"scheme"},
	)

	// ArchiveFormats counts unwrapped containers.
	// Labels: kind (none/zip/tar/gzip/tar.gzip), codec
	ArchiveFormats = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csvload_archive_formats_total",
			Help: "Total number of opened streams by container kind and codec",
		},
		[]string{"kind", "codec"},
	)

	// ActiveLoads tracks open iterators
	ActiveLoads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "csvload_active_loads",
			Help: "Number of load iterators currently open",
		},
	)

	// Throughput tracks rows per second delivered to a sink.
	// Labels: sink
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "csvload_throughput_rows_per_second",
			Help: "Current throughput in rows per second",
		},
		[]string{"sink"},
	)
)

// Timer measures the duration of one operation.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It may be called more than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks throughput (rows per second) over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64     // Rows since last reset
	lastReset time.Time // Time of last reset
	sink      string
}

// NewThroughputTracker creates a tracker reporting under the given sink label.
func NewThroughputTracker(sink string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		sink:      sink,
	}
}

// Increment adds n to the row count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// Count returns the rows counted since the last reset.
func (t *ThroughputTracker) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// GetAndReset calculates the current throughput, updates the Prometheus
// gauge, resets the counter and returns the rate.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.sink).Set(throughput)

	return throughput
}
