package monitor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// RuntimeMonitor exports process gauges while a command runs, next to the
// strategy metrics
type RuntimeMonitor struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	interval time.Duration
	metrics  struct {
		goroutines  prometheus.Gauge
		heapObjects prometheus.Gauge
		heapAlloc   prometheus.Gauge
		gcPause     prometheus.Gauge
	}
	wg sync.WaitGroup
}

// NewRuntimeMonitor registers the gauges with reg and samples them every
// interval until ctx is done or Cleanup is called
func NewRuntimeMonitor(ctx context.Context, reg prometheus.Registerer, interval time.Duration, logger *zap.Logger) (*RuntimeMonitor, error) {
	if reg == nil {
		return nil, fmt.Errorf("registerer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if interval <= 0 {
		interval = time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	m := &RuntimeMonitor{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		interval: interval,
	}

	factory := promauto.With(reg)
	m.metrics.goroutines = factory.NewGauge(prometheus.GaugeOpts{
		Name: "process_goroutines_current",
		Help: "Current number of goroutines",
	})
	m.metrics.heapObjects = factory.NewGauge(prometheus.GaugeOpts{
		Name: "process_heap_objects",
		Help: "Current number of heap objects",
	})
	m.metrics.heapAlloc = factory.NewGauge(prometheus.GaugeOpts{
		Name: "process_heap_alloc_bytes",
		Help: "Current heap allocation in bytes",
	})
	m.metrics.gcPause = factory.NewGauge(prometheus.GaugeOpts{
		Name: "process_last_gc_pause_milliseconds",
		Help: "Duration of the last GC pause",
	})

	m.collect()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run()
	}()

	return m, nil
}

func (m *RuntimeMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

func (m *RuntimeMonitor) collect() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.metrics.goroutines.Set(float64(runtime.NumGoroutine()))
	m.metrics.heapObjects.Set(float64(memStats.HeapObjects))
	m.metrics.heapAlloc.Set(float64(memStats.HeapAlloc))
	m.metrics.gcPause.Set(float64(memStats.PauseNs[(memStats.NumGC+255)%256]) / float64(time.Millisecond))
}

// Snapshot returns the values last exported
func (m *RuntimeMonitor) Snapshot() map[string]float64 {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]float64{
		"goroutines":   float64(runtime.NumGoroutine()),
		"heap_objects": float64(memStats.HeapObjects),
		"heap_alloc":   float64(memStats.HeapAlloc),
		"gc_pause":     float64(memStats.PauseNs[(memStats.NumGC+255)%256]) / float64(time.Millisecond),
	}
}

// Cleanup stops sampling and waits for the sampler to exit
func (m *RuntimeMonitor) Cleanup() {
	m.cancel()
	m.wg.Wait()
	m.logger.Debug("Runtime monitor stopped")
}
