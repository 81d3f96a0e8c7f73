package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var registry = prometheus.NewRegistry()

// Registry returns the process wide registry served on /metrics
func Registry() *prometheus.Registry {
	return registry
}

// Metrics instruments one strategy run
type Metrics struct {
	PriceRequests     prometheus.Counter
	PriceFailures     prometheus.Counter
	RelaySubmissions  *prometheus.CounterVec
	BracketsDeployed  prometheus.Counter
	OrdersBuilt       prometheus.Counter
	DepositsAllocated *prometheus.CounterVec
	SanityFailures    *prometheus.CounterVec
	CallLatency       *prometheus.HistogramVec
}

// NewMetrics registers the strategy metrics with reg
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PriceRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_requests_total",
			Help:      "Total number of price feed requests",
		}),
		PriceFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_failures_total",
			Help:      "Total number of failed price feed requests",
		}),
		RelaySubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_submissions_total",
			Help:      "Transactions proposed to the Safe relay by outcome",
		}, []string{"outcome"}),
		BracketsDeployed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "brackets_deployed_total",
			Help:      "Total number of bracket Safes deployed",
		}),
		OrdersBuilt: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_built_total",
			Help:      "Total number of orders placed in built transactions",
		}),
		DepositsAllocated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_allocated_total",
			Help:      "Deposits allocated to brackets by funding side",
		}, []string{"side"}),
		SanityFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sanity_failures_total",
			Help:      "Failed pre-flight checks by check",
		}, []string{"check"}),
		CallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_seconds",
			Help:      "Latency of calls to external services",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"service"}),
	}
}

// ObserveCall records the latency of a call to service that started at start
func (m *Metrics) ObserveCall(service string, start time.Time) {
	if m == nil {
		return
	}
	m.CallLatency.WithLabelValues(service).Observe(time.Since(start).Seconds())
}

// Serve exposes the registry on addr until ctx is done
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
