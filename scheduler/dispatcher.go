package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/config"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/internal/metrics"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/types"
)

// dispatcher owns the ready queue and the worker pool. It pairs sealed
// batches with idle workers, tracks in-flight batches against their
// latency budget, and declares workers dead on timeout or missed
// heartbeats. All queue and pool state is guarded by mu; workers run
// their batches on separate goroutines and report back through complete.
type dispatcher struct {
	cfg       config.SchedulerConfig
	less      Comparator
	lifecycle Lifecycle
	router    *resultRouter
	logger    *zap.Logger
	metrics   *metrics.Collector

	mu       sync.Mutex
	cond     *sync.Cond
	ready    []*Batch
	pool     *workerPool
	inflight map[string]*inflightBatch // keyed by batch id
	closed   bool

	runWG sync.WaitGroup
}

// inflightBatch tracks one dispatched batch and its deadline.
type inflightBatch struct {
	batch  *Batch
	worker *WorkerHandle
	timer  *time.Timer
}

func newDispatcher(cfg config.SchedulerConfig, less Comparator, lifecycle Lifecycle, router *resultRouter, logger *zap.Logger, m *metrics.Collector) *dispatcher {
	d := &dispatcher{
		cfg:       cfg,
		less:      less,
		lifecycle: lifecycle,
		router:    router,
		logger:    logger.With(zap.String("component", "dispatcher")),
		metrics:   m,
		pool:      newWorkerPool(),
		inflight:  make(map[string]*inflightBatch),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// addWorker registers a worker with the pool and wakes the dispatch loop.
func (d *dispatcher) addWorker(w *WorkerHandle) {
	d.mu.Lock()
	d.pool.add(w)
	d.updateWorkerGaugeLocked(w.modelID)
	d.mu.Unlock()
	d.cond.Broadcast()
}

// enqueue adds a sealed batch to the ready queue. After shutdown the
// batch is failed immediately instead.
func (d *dispatcher) enqueue(b *Batch) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		b.setState(BatchFailed)
		d.router.failAll(b, types.NewError(types.ErrShuttingDown, "scheduler is shutting down"), "shutdown")
		return
	}
	d.ready = append(d.ready, b)
	d.metrics.SetQueueDepth(b.model, d.readyDepthLocked(b.model))
	d.mu.Unlock()
	d.cond.Broadcast()
}

func (d *dispatcher) readyDepthLocked(modelID string) int {
	n := 0
	for _, b := range d.ready {
		if b.model == modelID {
			n++
		}
	}
	return n
}

// run is the dispatch loop: repeatedly pair the highest-precedence ready
// batch with an idle worker of the matching model, blocking when no
// pairing exists.
func (d *dispatcher) run(ctx context.Context) {
	for {
		d.mu.Lock()
		var (
			batch  *Batch
			worker *WorkerHandle
		)
		for !d.closed {
			batch, worker = d.pickLocked(time.Now())
			if batch != nil {
				break
			}
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}

		// Requests that already resolved (deadline, cancellation) are
		// dropped from the batch before it commits to a worker.
		live := batch.reqs[:0]
		for _, p := range batch.reqs {
			if !p.terminal() {
				live = append(live, p)
			}
		}
		batch.reqs = live
		if batch.Size() == 0 {
			batch.setState(BatchCompleted)
			d.metrics.SetQueueDepth(batch.model, d.readyDepthLocked(batch.model))
			d.mu.Unlock()
			continue
		}

		for _, p := range batch.reqs {
			p.dispatched.Store(true)
		}
		batch.setState(BatchDispatched)
		worker.setState(WorkerBusy)
		d.updateWorkerGaugeLocked(worker.modelID)

		// The batch must complete within its total latency budget,
		// measured from batch creation.
		deadline := batch.createdAt.Add(d.cfg.BatchTimeout)
		grace := time.Until(deadline)
		if grace <= 0 {
			grace = time.Millisecond
		}
		id := batch.id
		inf := &inflightBatch{batch: batch, worker: worker}
		inf.timer = time.AfterFunc(grace, func() { d.onBatchTimeout(id) })
		d.inflight[id] = inf

		waited := time.Since(batch.createdAt)
		d.metrics.RecordBatchDispatched(batch.model, batch.priority.String(), batch.Size(), waited)
		d.metrics.SetQueueDepth(batch.model, d.readyDepthLocked(batch.model))
		d.logger.Debug("batch dispatched",
			zap.String("batch_id", batch.id),
			zap.String("model", batch.model),
			zap.String("worker_id", worker.id),
			zap.Int("size", batch.Size()),
			zap.Duration("waited", waited),
		)

		d.runWG.Add(1)
		d.mu.Unlock()

		go d.runBatch(ctx, worker, batch, deadline)
	}
}

// pickLocked finds the highest-precedence ready batch that has an idle
// worker for its model and removes it from the queue.
func (d *dispatcher) pickLocked(now time.Time) (*Batch, *WorkerHandle) {
	best := -1
	for i, b := range d.ready {
		if d.pool.idleFor(b.model) == nil {
			continue
		}
		if best == -1 || d.less(now, b, d.ready[best]) {
			best = i
		}
	}
	if best == -1 {
		return nil, nil
	}
	b := d.ready[best]
	d.ready = append(d.ready[:best], d.ready[best+1:]...)
	return b, d.pool.idleFor(b.model)
}

// runBatch executes one batch on one worker and reports the outcome.
func (d *dispatcher) runBatch(ctx context.Context, w *WorkerHandle, b *Batch, deadline time.Time) {
	defer d.runWG.Done()

	payloads := make([][]byte, b.Size())
	for i, p := range b.reqs {
		payloads[i] = p.req.Payload
	}

	// The context expires slightly after the batch deadline so the
	// timeout path settles the batch first; a worker that only notices
	// the cancellation is already declared dead by then.
	predictCtx, cancel := context.WithDeadline(ctx, deadline.Add(100*time.Millisecond))
	defer cancel()

	start := time.Now()
	preds, err := w.model.Predict(predictCtx, payloads)
	dur := time.Since(start)

	d.complete(w, b, func() {
		d.metrics.RecordInference(b.model, dur)
		d.router.deliver(b, preds, err, dur)
	})
}

// complete settles a finished batch unless the timeout path already did.
// deliver runs outside the dispatcher lock.
func (d *dispatcher) complete(w *WorkerHandle, b *Batch, deliver func()) {
	d.mu.Lock()
	inf, ok := d.inflight[b.id]
	if ok {
		delete(d.inflight, b.id)
		inf.timer.Stop()
	}
	d.mu.Unlock()

	if ok {
		deliver()
	}

	d.mu.Lock()
	dead := w.State() == WorkerDead
	if !dead {
		// Idle only after all results were handed to the router.
		w.beat(time.Now())
		w.setState(WorkerIdle)
	}
	d.updateWorkerGaugeLocked(w.modelID)
	d.mu.Unlock()
	d.cond.Broadcast()

	if dead {
		// The worker was declared dead while this batch ran; release its
		// model now that the run goroutine is finished with it.
		d.terminateWorker(w)
	}
}

// onBatchTimeout fires when a dispatched batch misses its latency budget:
// the worker is declared dead, every request in the batch fails with
// WORKER_TIMEOUT, and a replacement worker is requested. The batch is
// never retried automatically.
func (d *dispatcher) onBatchTimeout(batchID string) {
	d.mu.Lock()
	inf, ok := d.inflight[batchID]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.inflight, batchID)

	b, w := inf.batch, inf.worker
	b.setState(BatchFailed)
	w.setState(WorkerDead)
	d.pool.remove(w)
	d.updateWorkerGaugeLocked(w.modelID)
	d.mu.Unlock()

	d.metrics.RecordWorkerDeath(w.modelID, "timeout")
	d.logger.Warn("worker missed batch deadline, declaring dead",
		zap.String("worker_id", w.id),
		zap.String("model", w.modelID),
		zap.String("batch_id", b.id),
		zap.Int("batch_size", b.Size()),
	)

	d.router.failAll(b, types.NewError(types.ErrWorkerTimeout,
		"worker did not complete the batch in time").
		WithModel(b.model).WithRetryable(true), "worker_timeout")

	go d.replaceWorker(w.modelID)
	d.cond.Broadcast()
}

// monitor runs the heartbeat loop: healthy models refresh their worker's
// heartbeat; an idle worker whose heartbeat goes stale is removed from
// the pool immediately and replaced.
func (d *dispatcher) monitor(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.checkHeartbeats(now)
		}
	}
}

func (d *dispatcher) checkHeartbeats(now time.Time) {
	d.mu.Lock()
	workers := d.pool.all()
	d.mu.Unlock()

	// Health probes happen outside the lock.
	healthy := make(map[*WorkerHandle]bool, len(workers))
	for _, w := range workers {
		healthy[w] = w.model.Healthy()
	}

	var dead []*WorkerHandle
	d.mu.Lock()
	for _, w := range workers {
		if healthy[w] {
			w.beat(now)
			continue
		}
		if w.State() == WorkerIdle && now.Sub(w.LastHeartbeat()) > d.cfg.HeartbeatTimeout {
			w.setState(WorkerDead)
			d.pool.remove(w)
			d.updateWorkerGaugeLocked(w.modelID)
			dead = append(dead, w)
		}
	}
	d.mu.Unlock()

	for _, w := range dead {
		d.metrics.RecordWorkerDeath(w.modelID, "heartbeat")
		d.logger.Warn("idle worker missed heartbeats, removing from pool",
			zap.String("worker_id", w.id),
			zap.String("model", w.modelID),
			zap.Time("last_heartbeat", w.LastHeartbeat()),
		)
		d.terminateWorker(w)
		go d.replaceWorker(w.modelID)
	}
}

// replaceWorker spawns a replacement for a dead worker, respecting the
// per-model pool bound. Replacement failure is logged, not retried; the
// next heartbeat cycle or operator action recovers the pool.
func (d *dispatcher) replaceWorker(modelID string) {
	d.mu.Lock()
	if d.closed || d.pool.countFor(modelID) >= d.cfg.MaxWorkersPerModel {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w, err := d.lifecycle.SpawnWorker(ctx, modelID)
	if err != nil {
		d.logger.Error("failed to spawn replacement worker",
			zap.String("model", modelID), zap.Error(err))
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.terminateWorker(w)
		return
	}
	d.pool.add(w)
	d.updateWorkerGaugeLocked(modelID)
	d.mu.Unlock()
	d.cond.Broadcast()

	d.logger.Info("replacement worker joined pool",
		zap.String("worker_id", w.id), zap.String("model", modelID))
}

func (d *dispatcher) terminateWorker(w *WorkerHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.lifecycle.TerminateWorker(ctx, w); err != nil {
		d.logger.Warn("terminate worker failed",
			zap.String("worker_id", w.id), zap.Error(err))
	}
}

// updateWorkerGaugeLocked refreshes the worker-state gauges for a model.
func (d *dispatcher) updateWorkerGaugeLocked(modelID string) {
	if d.metrics == nil {
		return
	}
	counts := make(map[WorkerState]int)
	for _, w := range d.pool.byModel[modelID] {
		counts[w.State()]++
	}
	for _, s := range []WorkerState{WorkerIdle, WorkerBusy, WorkerDraining, WorkerDead} {
		d.metrics.SetWorkers(modelID, s.String(), counts[s])
	}
}

// healthyFor reports whether the model has at least one non-dead worker.
func (d *dispatcher) healthyFor(modelID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pool.healthyFor(modelID)
}

// close stops dispatching and returns the batches still waiting in the
// ready queue so the engine can fail their requests terminally. In-flight
// batches keep running; wait blocks until they finish.
func (d *dispatcher) close() []*Batch {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	orphaned := d.ready
	d.ready = nil
	d.mu.Unlock()
	d.cond.Broadcast()
	return orphaned
}

// wait blocks until all in-flight batch runners have finished.
func (d *dispatcher) wait() {
	d.runWG.Wait()
}

// shutdownWorkers drains the pool: every remaining worker moves to
// DRAINING and is then terminated. Callers must have stopped dispatching
// first; in-flight batches are assumed finished.
func (d *dispatcher) shutdownWorkers() {
	d.mu.Lock()
	workers := d.pool.all()
	for _, w := range workers {
		if w.State() != WorkerDead {
			w.setState(WorkerDraining)
		}
		d.updateWorkerGaugeLocked(w.modelID)
	}
	d.mu.Unlock()

	for _, w := range workers {
		d.terminateWorker(w)
	}
}

// workers returns a snapshot of the pool for shutdown.
func (d *dispatcher) workers() []*WorkerHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pool.all()
}
