// Package metrics provides internal metrics collection for the
// categorization pipeline. This package is internal and should not be
// imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector exposes the pipeline's Prometheus metrics. All methods are
// safe on a nil receiver so components can run without metrics in tests.
type Collector struct {
	requestsTotal       *prometheus.CounterVec
	admissionRejections *prometheus.CounterVec
	batchesSealed       *prometheus.CounterVec
	batchesDispatched   *prometheus.CounterVec
	batchSize           *prometheus.HistogramVec
	batchWaitDuration   *prometheus.HistogramVec
	inferenceDuration   *prometheus.HistogramVec
	queueDepth          *prometheus.GaugeVec
	inflightRequests    prometheus.Gauge
	workersByState      *prometheus.GaugeVec
	workerDeaths        *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates and registers the pipeline metrics under the given
// namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total classification requests by terminal outcome",
		},
		[]string{"model", "priority", "outcome"},
	)

	c.admissionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejections_total",
			Help:      "Requests rejected at admission by reason",
		},
		[]string{"reason"},
	)

	c.batchesSealed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_sealed_total",
			Help:      "Batches sealed by trigger (size or timer)",
		},
		[]string{"model", "priority", "trigger"},
	)

	c.batchesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_dispatched_total",
			Help:      "Batches handed to a worker",
		},
		[]string{"model", "priority"},
	)

	c.batchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of requests per dispatched batch",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"model"},
	)

	c.batchWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_wait_duration_seconds",
			Help:      "Time from batch creation to dispatch",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"model", "priority"},
	)

	c.inferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Model inference duration per batch",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	c.queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready_queue_depth",
			Help:      "Sealed batches waiting for a worker",
		},
		[]string{"model"},
	)

	c.inflightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_requests",
			Help:      "Accepted requests without a terminal outcome yet",
		},
	)

	c.workersByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Workers by model and state",
		},
		[]string{"model", "state"},
	)

	c.workerDeaths = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_deaths_total",
			Help:      "Workers declared dead by cause (timeout or heartbeat)",
		},
		[]string{"model", "cause"},
	)

	return c
}

// RecordOutcome records the terminal outcome of one request.
func (c *Collector) RecordOutcome(model, priority, outcome string) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(model, priority, outcome).Inc()
}

// RecordRejection records an admission-time rejection.
func (c *Collector) RecordRejection(reason string) {
	if c == nil {
		return
	}
	c.admissionRejections.WithLabelValues(reason).Inc()
}

// RecordBatchSealed records a batch seal and its trigger.
func (c *Collector) RecordBatchSealed(model, priority, trigger string) {
	if c == nil {
		return
	}
	c.batchesSealed.WithLabelValues(model, priority, trigger).Inc()
}

// RecordBatchDispatched records a batch dispatch.
func (c *Collector) RecordBatchDispatched(model, priority string, size int, waited time.Duration) {
	if c == nil {
		return
	}
	c.batchesDispatched.WithLabelValues(model, priority).Inc()
	c.batchSize.WithLabelValues(model).Observe(float64(size))
	c.batchWaitDuration.WithLabelValues(model, priority).Observe(waited.Seconds())
}

// RecordInference records one model invocation's duration.
func (c *Collector) RecordInference(model string, duration time.Duration) {
	if c == nil {
		return
	}
	c.inferenceDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// SetQueueDepth sets the ready-queue depth for a model.
func (c *Collector) SetQueueDepth(model string, depth int) {
	if c == nil {
		return
	}
	c.queueDepth.WithLabelValues(model).Set(float64(depth))
}

// AddInflight adjusts the in-flight request gauge.
func (c *Collector) AddInflight(delta int) {
	if c == nil {
		return
	}
	c.inflightRequests.Add(float64(delta))
}

// SetWorkers sets the worker count for a model and state.
func (c *Collector) SetWorkers(model, state string, n int) {
	if c == nil {
		return
	}
	c.workersByState.WithLabelValues(model, state).Set(float64(n))
}

// RecordWorkerDeath records a worker being declared dead.
func (c *Collector) RecordWorkerDeath(model, cause string) {
	if c == nil {
		return
	}
	c.workerDeaths.WithLabelValues(model, cause).Inc()
}
