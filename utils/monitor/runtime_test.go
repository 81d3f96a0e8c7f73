package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRuntimeMonitor(t *testing.T) {
	logger := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon, err := NewRuntimeMonitor(ctx, reg, 10*time.Millisecond, logger)
	require.NoError(t, err)

	assert.Greater(t, testutil.ToFloat64(mon.metrics.goroutines), 0.0)
	assert.Greater(t, testutil.ToFloat64(mon.metrics.heapAlloc), 0.0)

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	snapshot := mon.Snapshot()
	for _, key := range []string{"goroutines", "heap_objects", "heap_alloc", "gc_pause"} {
		assert.Contains(t, snapshot, key)
	}

	done := make(chan struct{})
	go func() {
		mon.Cleanup()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestNewRuntimeMonitorErrors(t *testing.T) {
	_, err := NewRuntimeMonitor(context.Background(), nil, time.Second, zaptest.NewLogger(t))
	assert.Error(t, err)

	_, err = NewRuntimeMonitor(context.Background(), prometheus.NewRegistry(), time.Second, nil)
	assert.Error(t, err)
}
