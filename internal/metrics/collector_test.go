package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestCollector() *Collector {
	return NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
}

func TestCollector_RecordQuery(t *testing.T) {
	c := newTestCollector()

	c.RecordQuery("context", 2, 120*time.Millisecond)
	c.RecordQuery("context", 3, 80*time.Millisecond)
	c.RecordQuery("no-match", 0, 40*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.queriesTotal.WithLabelValues("context")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queriesTotal.WithLabelValues("no-match")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.queryDuration))
}

func TestCollector_RecordStrategy(t *testing.T) {
	c := newTestCollector()

	c.RecordStrategy("content", "ok", 3, 10*time.Millisecond)
	c.RecordStrategy("content", "ok", 2, 12*time.Millisecond)
	c.RecordStrategy("vector", "timeout", 0, 5*time.Second)

	assert.Equal(t, 5.0, testutil.ToFloat64(c.strategyResults.WithLabelValues("content")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.strategyDuration))
}

func TestCollector_SubsystemGauge(t *testing.T) {
	c := newTestCollector()

	c.SetSubsystemAvailable("graphStore", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.subsystemUp.WithLabelValues("graphStore")))

	c.SetSubsystemAvailable("graphStore", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.subsystemUp.WithLabelValues("graphStore")))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := newTestCollector()

	c.RecordHTTPRequest("POST", "/api/query", 200, 50*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/query", 400, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/query", "400")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.httpRequestsTotal))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordQuery("context", 1, time.Second)
		c.RecordStrategy("entity", "ok", 1, time.Second)
		c.SetSubsystemAvailable("languageModel", true)
		c.RecordHTTPRequest("GET", "/", 200, time.Second)
	})
}

func TestCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		newTestCollector()
		newTestCollector()
	})
}
