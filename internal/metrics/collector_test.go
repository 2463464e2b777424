package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, c)
	assert.NotNil(t, c.requestsTotal)
	assert.NotNil(t, c.admissionRejections)
	assert.NotNil(t, c.batchesSealed)
	assert.NotNil(t, c.batchesDispatched)
	assert.NotNil(t, c.workersByState)
}

func TestCollector_RecordOutcome(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordOutcome("resnet50", "high", "success")
	c.RecordOutcome("resnet50", "high", "success")
	c.RecordOutcome("resnet50", "low", "worker_timeout")

	assert.Equal(t, 2.0, testutil.ToFloat64(
		c.requestsTotal.WithLabelValues("resnet50", "high", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.requestsTotal.WithLabelValues("resnet50", "low", "worker_timeout")))
}

func TestCollector_BatchMetrics(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordBatchSealed("m", "normal", "size")
	c.RecordBatchSealed("m", "normal", "timer")
	c.RecordBatchDispatched("m", "normal", 8, 20*time.Millisecond)
	c.SetQueueDepth("m", 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.batchesSealed.WithLabelValues("m", "normal", "size")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.batchesDispatched.WithLabelValues("m", "normal")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.queueDepth.WithLabelValues("m")))
}

func TestCollector_WorkerMetrics(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.SetWorkers("m", "idle", 2)
	c.SetWorkers("m", "busy", 1)
	c.RecordWorkerDeath("m", "timeout")
	c.AddInflight(5)
	c.AddInflight(-2)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.workersByState.WithLabelValues("m", "idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.workerDeaths.WithLabelValues("m", "timeout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.inflightRequests))
}

func TestCollector_NilReceiver(t *testing.T) {
	var c *Collector

	// All recording methods must be no-ops on nil.
	c.RecordOutcome("m", "low", "success")
	c.RecordRejection("overloaded")
	c.RecordBatchSealed("m", "low", "size")
	c.RecordBatchDispatched("m", "low", 1, time.Millisecond)
	c.RecordInference("m", time.Millisecond)
	c.SetQueueDepth("m", 0)
	c.AddInflight(1)
	c.SetWorkers("m", "idle", 1)
	c.RecordWorkerDeath("m", "heartbeat")
}
