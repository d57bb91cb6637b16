// Package metrics exposes Prometheus instruments for the query pipeline and
// the HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector owns every instrument. Instruments are registered on the
// registry passed to NewCollector so tests can use a private one.
type Collector struct {
	queriesTotal     *prometheus.CounterVec
	queryDuration    prometheus.Histogram
	strategyDuration *prometheus.HistogramVec
	strategyResults  *prometheus.CounterVec
	contextResults   prometheus.Histogram
	subsystemUp      *prometheus.GaugeVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers the instruments under namespace on reg.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	return &Collector{
		queriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of pipeline queries by response branch",
			},
			[]string{"branch"},
		),
		queryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "End-to-end pipeline query duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		strategyDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_strategy_duration_seconds",
				Help:      "Retrieval strategy duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"strategy", "status"},
		),
		strategyResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_results_total",
				Help:      "Results returned by each retrieval strategy",
			},
			[]string{"strategy"},
		),
		contextResults: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "context_results",
				Help:      "Aggregated results placed in the context per query",
				Buckets:   prometheus.LinearBuckets(0, 1, 11),
			},
		),
		subsystemUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subsystem_available",
				Help:      "1 when the subsystem is available, 0 otherwise",
			},
			[]string{"subsystem"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// RecordQuery records one finished pipeline query.
func (c *Collector) RecordQuery(branch string, contextResults int, duration time.Duration) {
	if c == nil {
		return
	}
	c.queriesTotal.WithLabelValues(branch).Inc()
	c.queryDuration.Observe(duration.Seconds())
	c.contextResults.Observe(float64(contextResults))
}

// RecordStrategy records one retrieval strategy run.
func (c *Collector) RecordStrategy(strategy, status string, results int, duration time.Duration) {
	if c == nil {
		return
	}
	c.strategyDuration.WithLabelValues(strategy, status).Observe(duration.Seconds())
	c.strategyResults.WithLabelValues(strategy).Add(float64(results))
}

// SetSubsystemAvailable records the availability of a subsystem.
func (c *Collector) SetSubsystemAvailable(subsystem string, available bool) {
	if c == nil {
		return
	}
	v := 0.0
	if available {
		v = 1
	}
	c.subsystemUp.WithLabelValues(subsystem).Set(v)
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
