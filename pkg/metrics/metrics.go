// Package metrics exposes connection pool and workload metrics to
// Prometheus.
//
// # Overview
//
// The metrics package provides:
//   - PoolCollector, a prometheus.Collector reading Pool.Stats at scrape time
//   - WorkloadMetrics, counters and histograms recorded by load generators
//   - Timer, ThroughputTracker and LatencyTracker helpers for reports
//
// # Basic Usage
//
//	reg := prometheus.NewRegistry()
//	collector := metrics.NewPoolCollector("connpool")
//	collector.Add(p)
//	reg.MustRegister(collector)
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// # Metric Types
//
// Gauge: pool occupancy (created, idle, in use, waiting)
// Counter: cumulative pool activity (acquires, reuses, create failures)
// Histogram: operation latency recorded by WorkloadMetrics
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ajitpratap0/connpool/pkg/pool"
)

// StatsSource is anything that can report pool statistics. *pool.Pool
// satisfies it.
type StatsSource interface {
	Stats() pool.Stats
}

// PoolCollector exports the statistics of one or more pools. Values are read
// when Prometheus scrapes, so the pool does no metric bookkeeping of its own.
type PoolCollector struct {
	mu      sync.RWMutex
	sources []StatsSource

	capacity       *prometheus.Desc
	created        *prometheus.Desc
	idle           *prometheus.Desc
	inUse          *prometheus.Desc
	waiting        *prometheus.Desc
	acquired       *prometheus.Desc
	reused         *prometheus.Desc
	createFailures *prometheus.Desc
	waitCount      *prometheus.Desc
	waitSeconds    *prometheus.Desc
	leaksRecovered *prometheus.Desc
	closed         *prometheus.Desc
}

// NewPoolCollector creates a collector whose metric names start with
// namespace_pool_.
func NewPoolCollector(namespace string) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", name), help, []string{"pool"}, nil)
	}

	return &PoolCollector{
		capacity:       desc("capacity", "Maximum number of connections the pool may create."),
		created:        desc("connections", "Connections currently open or being opened."),
		idle:           desc("idle_connections", "Connections waiting in the idle set."),
		inUse:          desc("in_use_connections", "Connections currently leased."),
		waiting:        desc("waiting_acquires", "Acquire calls currently blocked."),
		acquired:       desc("acquires_total", "Successful Acquire calls."),
		reused:         desc("reuses_total", "Acquires served from the idle set."),
		createFailures: desc("create_failures_total", "Connection attempts that failed."),
		waitCount:      desc("waits_total", "Acquire calls that had to block."),
		waitSeconds:    desc("wait_seconds_total", "Total time spent blocked in Acquire."),
		leaksRecovered: desc("leaks_recovered_total", "Leases reclaimed after being dropped without Release."),
		closed:         desc("closed", "1 once the pool has been closed."),
	}
}

// Add registers a pool with the collector
func (c *PoolCollector) Add(src StatsSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, src)
}

// Describe implements prometheus.Collector
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.created
	ch <- c.idle
	ch <- c.inUse
	ch <- c.waiting
	ch <- c.acquired
	ch <- c.reused
	ch <- c.createFailures
	ch <- c.waitCount
	ch <- c.waitSeconds
	ch <- c.leaksRecovered
	ch <- c.closed
}

// Collect implements prometheus.Collector
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	sources := append([]StatsSource(nil), c.sources...)
	c.mu.RUnlock()

	for _, src := range sources {
		s := src.Stats()
		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, s.Name)
		}
		counter := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, s.Name)
		}

		gauge(c.capacity, float64(s.Capacity))
		gauge(c.created, float64(s.Created))
		gauge(c.idle, float64(s.Idle))
		gauge(c.inUse, float64(s.InUse))
		gauge(c.waiting, float64(s.Waiting))
		counter(c.acquired, float64(s.Acquired))
		counter(c.reused, float64(s.Reused))
		counter(c.createFailures, float64(s.CreateFailures))
		counter(c.waitCount, float64(s.WaitCount))
		counter(c.waitSeconds, s.WaitDuration.Seconds())
		counter(c.leaksRecovered, float64(s.LeaksRecovered))

		closed := 0.0
		if s.Closed {
			closed = 1
		}
		gauge(c.closed, closed)
	}
}

// WorkloadMetrics records operations run against a pool by a load generator
type WorkloadMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	retries    prometheus.Counter
}

// NewWorkloadMetrics creates and registers workload metrics on reg, or on
// the default registerer when reg is nil.
func NewWorkloadMetrics(reg prometheus.Registerer, namespace string) *WorkloadMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &WorkloadMetrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workload",
				Name:      "operations_total",
				Help:      "Workload operations, labeled by outcome.",
			},
			[]string{"pool", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "workload",
				Name:      "operation_duration_seconds",
				Help:      "Time from Acquire to Release for one workload operation.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"pool"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workload",
				Name:      "retries_total",
				Help:      "Operations retried after a retryable error.",
			},
		),
	}
	reg.MustRegister(m.operations, m.latency, m.retries)
	return m
}

// ObserveOperation records one finished operation. A nil receiver is a no-op.
func (m *WorkloadMetrics) ObserveOperation(poolName string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.operations.WithLabelValues(poolName, status).Inc()
	m.latency.WithLabelValues(poolName).Observe(d.Seconds())
}

// ObserveRetry records a retried operation. A nil receiver is a no-op.
func (m *WorkloadMetrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It may be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker counts operations and reports them per second.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
}

// NewThroughputTracker creates a tracker starting now
func NewThroughputTracker() *ThroughputTracker {
	return &ThroughputTracker{lastReset: time.Now()}
}

// Increment adds n to the operation count. Safe for concurrent use.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns operations per second since the last reset and starts
// a new window.
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
	return throughput
}

// LatencyTracker keeps the most recent latencies for percentile reporting
type LatencyTracker struct {
	mu      sync.Mutex
	values  []time.Duration
	maxSize int
}

// NewLatencyTracker creates a tracker holding at most maxSize samples
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LatencyTracker{
		values:  make([]time.Duration, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record records a latency value, evicting the oldest once full
func (l *LatencyTracker) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.values) >= l.maxSize {
		l.values = l.values[1:]
	}
	l.values = append(l.values, d)
}

// Count returns the number of samples held
func (l *LatencyTracker) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.values)
}

// GetPercentile returns the nearest-rank percentile (0-100) of the held
// samples, or 0 when there are none.
func (l *LatencyTracker) GetPercentile(p float64) time.Duration {
	l.mu.Lock()
	sorted := append([]time.Duration(nil), l.values...)
	l.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := int(math.Ceil(float64(len(sorted))*p/100)) - 1
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	if index < 0 {
		index = 0
	}
	return sorted[index]
}
