package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/internal/metrics"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/types"
)

// bucketKey partitions open batches by model and priority.
type bucketKey struct {
	model    string
	priority types.Priority
}

// assembler groups accepted requests into bounded-size, bounded-wait
// batches. Exactly one OPEN batch exists per bucket; sealing hands the
// batch to the dispatcher and installs a fresh OPEN batch immediately.
type assembler struct {
	maxSize  int
	maxWait  time.Duration
	onSealed func(*Batch)
	logger   *zap.Logger
	metrics  *metrics.Collector

	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	closed  bool
}

// bucket owns the OPEN batch for one (model, priority) pair. All mutation
// of the open batch happens under the bucket lock.
type bucket struct {
	key   bucketKey
	owner *assembler

	mu    sync.Mutex
	open  *Batch
	timer *time.Timer
}

func newAssembler(maxSize int, maxWait time.Duration, onSealed func(*Batch), logger *zap.Logger, m *metrics.Collector) *assembler {
	return &assembler{
		maxSize:  maxSize,
		maxWait:  maxWait,
		onSealed: onSealed,
		logger:   logger.With(zap.String("component", "assembler")),
		metrics:  m,
		buckets:  make(map[bucketKey]*bucket),
	}
}

// add appends the request to its bucket's OPEN batch, sealing on size.
// It reports false when the assembler is already closed, in which case
// the caller owns the terminal outcome.
func (a *assembler) add(p *pending) bool {
	b := a.bucket(bucketKey{model: p.req.Model, priority: p.req.Priority})

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open == nil {
		return false
	}

	batch := b.open
	if batch.Size() == 0 {
		// First request starts the batch's wait budget.
		batch.createdAt = time.Now()
		b.timer.Reset(a.maxWait)
	}
	batch.reqs = append(batch.reqs, p)

	if batch.Size() >= a.maxSize {
		b.sealLocked("size")
	}
	return true
}

// remove withdraws a request from its bucket's OPEN batch. It reports
// false when the request is no longer in the open batch (already sealed
// or never added).
func (a *assembler) remove(p *pending) bool {
	a.mu.Lock()
	b, ok := a.buckets[bucketKey{model: p.req.Model, priority: p.req.Priority}]
	a.mu.Unlock()
	if !ok {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open == nil {
		return false
	}
	for i, q := range b.open.reqs {
		if q == p {
			b.open.reqs = append(b.open.reqs[:i], b.open.reqs[i+1:]...)
			if b.open.Size() == 0 {
				b.timer.Stop()
			}
			return true
		}
	}
	return false
}

// bucket returns the bucket for the key, creating it on first use.
func (a *assembler) bucket(key bucketKey) *bucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buckets[key]
	if !ok {
		b = &bucket{key: key, owner: a}
		b.timer = time.AfterFunc(a.maxWait, b.onTimer)
		b.timer.Stop()
		if !a.closed {
			b.open = newBatch(key.model, key.priority, a.maxWait)
		}
		a.buckets[key] = b
	}
	return b
}

// onTimer seals the bucket's OPEN batch when its wait budget elapses, so
// low-traffic buckets are not starved waiting to fill.
func (b *bucket) onTimer() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open == nil || b.open.Size() == 0 {
		return
	}
	b.sealLocked("timer")
}

// sealLocked transfers the open batch to the dispatcher and installs a
// fresh one. Called with the bucket lock held, which keeps per-bucket
// seal order equal to ready-queue insertion order.
func (b *bucket) sealLocked(trigger string) {
	a := b.owner
	batch := b.open
	batch.setState(BatchSealed)
	b.open = newBatch(b.key.model, b.key.priority, a.maxWait)
	b.timer.Stop()

	a.metrics.RecordBatchSealed(batch.model, batch.priority.String(), trigger)
	a.logger.Debug("batch sealed",
		zap.String("batch_id", batch.id),
		zap.String("model", batch.model),
		zap.String("priority", batch.priority.String()),
		zap.Int("size", batch.Size()),
		zap.String("trigger", trigger),
	)
	a.onSealed(batch)
}

// close stops all timers and returns every request still waiting in an
// OPEN batch so the engine can fail them terminally.
func (a *assembler) close() []*pending {
	a.mu.Lock()
	a.closed = true
	buckets := make([]*bucket, 0, len(a.buckets))
	for _, b := range a.buckets {
		buckets = append(buckets, b)
	}
	a.mu.Unlock()

	var orphaned []*pending
	for _, b := range buckets {
		b.mu.Lock()
		b.timer.Stop()
		if b.open != nil {
			orphaned = append(orphaned, b.open.reqs...)
			b.open = nil
		}
		b.mu.Unlock()
	}
	return orphaned
}
