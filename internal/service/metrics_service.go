package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface and the run engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runPenalty      *prometheus.HistogramVec
	applyConflicts  prometheus.Counter
	activeRuns      prometheus.Gauge
	storeDuration   *prometheus.HistogramVec
	mirrorFailures  prometheus.Counter

	requestCount   uint64
	runsStarted    uint64
	runsFinished   uint64
	conflictCount  uint64
	activeRunCount int64
}

// MetricsSnapshot is a lightweight view used by the readiness endpoint.
type MetricsSnapshot struct {
	RequestsTotal  uint64    `json:"requestsTotal"`
	RunsStarted    uint64    `json:"runsStarted"`
	RunsFinished   uint64    `json:"runsFinished"`
	ActiveRuns     int64     `json:"activeRuns"`
	ApplyConflicts uint64    `json:"applyConflicts"`
	Goroutines     int       `json:"goroutines"`
	MemoryUsedPct  float64   `json:"memoryUsedPercent"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_runs_total",
		Help: "Generation runs by strategy and final search status",
	}, []string{"strategy", "status"})

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schedule_run_duration_seconds",
		Help:    "Wall-clock duration of generation runs",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"strategy"})

	runPenalty := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schedule_run_penalty",
		Help:    "Soft-constraint penalty of successful runs",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
	}, []string{"strategy"})

	applyConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_apply_conflicts_total",
		Help: "Apply attempts rejected because the committed version moved",
	})

	activeRuns := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "schedule_runs_active",
		Help: "Generation runs currently searching",
	})

	storeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schedule_store_duration_seconds",
		Help:    "Duration of schedule store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	mirrorFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_progress_mirror_failures_total",
		Help: "Progress snapshots that could not be mirrored to Redis",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	hostCPU := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "host_cpu_usage_percent",
		Help: "Host CPU utilisation since the previous scrape",
	}, func() float64 {
		pct, err := cpu.Percent(0, false)
		if err != nil || len(pct) == 0 {
			return 0
		}
		return pct[0]
	})

	hostMemory := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "host_memory_used_percent",
		Help: "Host memory in use",
	}, memoryUsedPercent)

	registry.MustRegister(requestDuration, requestTotal, runsTotal, runDuration, runPenalty, applyConflicts,
		activeRuns, storeDuration, mirrorFailures, goroutines, hostCPU, hostMemory)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		runsTotal:       runsTotal,
		runDuration:     runDuration,
		runPenalty:      runPenalty,
		applyConflicts:  applyConflicts,
		activeRuns:      activeRuns,
		storeDuration:   storeDuration,
		mirrorFailures:  mirrorFailures,
	}
}

func memoryUsedPercent() float64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return vm.UsedPercent
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// RunStarted marks a run as searching.
func (m *MetricsService) RunStarted() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
	atomic.AddUint64(&m.runsStarted, 1)
	atomic.AddInt64(&m.activeRunCount, 1)
}

// RunFinished records the outcome of a search that left RUNNING.
func (m *MetricsService) RunFinished(strategy, status string, duration time.Duration, penalty *float64) {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
	atomic.AddInt64(&m.activeRunCount, -1)
	atomic.AddUint64(&m.runsFinished, 1)
	m.runsTotal.WithLabelValues(strategy, status).Inc()
	m.runDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	if penalty != nil {
		m.runPenalty.WithLabelValues(strategy).Observe(*penalty)
	}
}

// RecordApplyConflict counts a compare-and-swap miss on apply.
func (m *MetricsService) RecordApplyConflict() {
	if m == nil {
		return
	}
	m.applyConflicts.Inc()
	atomic.AddUint64(&m.conflictCount, 1)
}

// ObserveStore records schedule store timing.
func (m *MetricsService) ObserveStore(op string, duration time.Duration) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordMirrorFailure counts a failed progress mirror write.
func (m *MetricsService) RecordMirrorFailure() {
	if m == nil {
		return
	}
	m.mirrorFailures.Inc()
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		RequestsTotal:  atomic.LoadUint64(&m.requestCount),
		RunsStarted:    atomic.LoadUint64(&m.runsStarted),
		RunsFinished:   atomic.LoadUint64(&m.runsFinished),
		ActiveRuns:     atomic.LoadInt64(&m.activeRunCount),
		ApplyConflicts: atomic.LoadUint64(&m.conflictCount),
		Goroutines:     runtime.NumGoroutine(),
		MemoryUsedPct:  memoryUsedPercent(),
		GeneratedAt:    time.Now().UTC(),
	}
}
