package metrics

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// MetricsManager is a singleton that owns the host and runtime gauges. They
// are registered on first use only, so a process that never enables system
// metrics exports none of them.
type MetricsManager struct {
	// System metrics
	systemCPUUsage    *prometheus.GaugeVec
	systemMemoryUsage *prometheus.GaugeVec

	// Go runtime metrics
	goHeapAlloc     prometheus.Gauge
	goHeapSys       prometheus.Gauge
	goGCPauseNs     prometheus.Histogram
	goGCCPUFraction prometheus.Gauge

	registerer  prometheus.Registerer
	initialized bool
	mu          sync.RWMutex
}

var (
	instance *MetricsManager
	once     sync.Once
)

// GetInstance returns the singleton instance of MetricsManager
func GetInstance() *MetricsManager {
	once.Do(func() {
		instance = newMetricsManager(prometheus.DefaultRegisterer)
	})
	return instance
}

func newMetricsManager(reg prometheus.Registerer) *MetricsManager {
	return &MetricsManager{registerer: reg}
}

// InitializeMetrics creates and registers the gauges (thread-safe)
func (mm *MetricsManager) InitializeMetrics() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.initialized {
		return
	}

	mm.systemCPUUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "system_cpu_usage_percent",
			Help: "Current CPU usage percentage",
		},
		[]string{"core"},
	)

	mm.systemMemoryUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "system_memory_usage_bytes",
			Help: "Current memory usage in bytes",
		},
		[]string{"type"},
	)

	mm.goHeapAlloc = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_go_heap_alloc_bytes",
			Help: "Heap memory usage in bytes",
		},
	)

	mm.goHeapSys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_go_heap_sys_bytes",
			Help: "Heap memory reserved in bytes",
		},
	)

	mm.goGCPauseNs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "api_go_gc_pause_nanoseconds",
			Help:    "GC pause time in nanoseconds",
			Buckets: prometheus.ExponentialBuckets(1000, 2, 20),
		},
	)

	mm.goGCCPUFraction = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_go_gc_cpu_fraction",
			Help: "Fraction of CPU time used by GC",
		},
	)

	mm.registerer.MustRegister(
		mm.systemCPUUsage,
		mm.systemMemoryUsage,
		mm.goHeapAlloc,
		mm.goHeapSys,
		mm.goGCPauseNs,
		mm.goGCCPUFraction,
	)

	mm.initialized = true
}

// StartSystemMetrics collects host and runtime metrics every interval until
// ctx is done.
func StartSystemMetrics(ctx context.Context, interval time.Duration) {
	mm := GetInstance()
	mm.InitializeMetrics()

	log.Info().Dur("interval", interval).Msg("Starting system metrics collection")

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			mm.collect()
			select {
			case <-ctx.Done():
				log.Debug().Msg("System metrics collection stopped")
				return
			case <-ticker.C:
			}
		}
	}()
}

func (mm *MetricsManager) collect() {
	mm.collectSystemMetrics()
	mm.collectGoRuntimeMetrics()
}

// collectSystemMetrics collects system-level metrics
func (mm *MetricsManager) collectSystemMetrics() {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	if !mm.initialized {
		return
	}

	if cpuPercentages, err := cpu.Percent(0, true); err == nil {
		for i, percentage := range cpuPercentages {
			mm.systemCPUUsage.WithLabelValues(fmt.Sprintf("cpu%d", i)).Set(percentage)
		}
	} else {
		log.Debug().Err(err).Msg("Failed to read CPU usage")
	}

	if vmstat, err := mem.VirtualMemory(); err == nil {
		mm.systemMemoryUsage.WithLabelValues("total").Set(float64(vmstat.Total))
		mm.systemMemoryUsage.WithLabelValues("available").Set(float64(vmstat.Available))
		mm.systemMemoryUsage.WithLabelValues("used").Set(float64(vmstat.Used))
		mm.systemMemoryUsage.WithLabelValues("free").Set(float64(vmstat.Free))
	} else {
		log.Debug().Err(err).Msg("Failed to read memory usage")
	}
}

// collectGoRuntimeMetrics collects Go runtime metrics
func (mm *MetricsManager) collectGoRuntimeMetrics() {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	if !mm.initialized {
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.goHeapAlloc.Set(float64(m.HeapAlloc))
	mm.goHeapSys.Set(float64(m.HeapSys))
	mm.goGCPauseNs.Observe(float64(m.PauseNs[(m.NumGC+255)%256]))
	mm.goGCCPUFraction.Set(m.GCCPUFraction)
}
