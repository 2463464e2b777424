package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/config"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/internal/limiter"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/internal/metrics"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/model"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/types"
)

// Options wires the engine's collaborators.
type Options struct {
	// Lifecycle provisions workers. When nil, a LocalLifecycle is built
	// from Loader.
	Lifecycle Lifecycle
	// Loader loads model instances in-process. Required when Lifecycle is
	// nil.
	Loader model.Loader
	// Models maps each servable model identifier to its initial worker
	// count. Submit rejects requests for models not listed here.
	Models map[string]int
	// ClientLimiter optionally rate-limits clients at admission, on top
	// of the in-flight ceilings.
	ClientLimiter limiter.ClientLimiter
	// Comparator orders the ready queue. Defaults to DefaultComparator.
	Comparator Comparator
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Metrics is optional; nil disables metric recording.
	Metrics *metrics.Collector
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Accepted  int64 `json:"accepted"`
	Rejected  int64 `json:"rejected"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Inflight  int   `json:"inflight"`
}

// Engine is the scheduling core: admission control, batch assembly,
// dispatch, and result routing behind a single Submit/Await surface.
type Engine struct {
	cfg        config.SchedulerConfig
	models     map[string]int
	admission  *admissionController
	assembler  *assembler
	dispatcher *dispatcher
	router     *resultRouter
	logger     *zap.Logger
	metrics    *metrics.Collector

	started atomic.Bool
	closed  atomic.Bool
	stop    context.CancelFunc

	submitted atomic.Int64
	accepted  atomic.Int64
	rejected  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New builds an engine from the configuration and collaborators. Start
// must be called before Submit.
func New(cfg config.SchedulerConfig, opts Options) (*Engine, error) {
	if len(opts.Models) == 0 {
		return nil, fmt.Errorf("at least one model is required")
	}
	lifecycle := opts.Lifecycle
	if lifecycle == nil {
		if opts.Loader == nil {
			return nil, fmt.Errorf("either Lifecycle or Loader is required")
		}
		lifecycle = NewLocalLifecycle(opts.Loader)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	less := opts.Comparator
	if less == nil {
		less = DefaultComparator
	}

	e := &Engine{
		cfg:     cfg,
		models:  opts.Models,
		logger:  logger.With(zap.String("component", "engine")),
		metrics: opts.Metrics,
	}
	e.admission = newAdmissionController(
		cfg.GlobalInflightLimit, cfg.ClientInflightLimit, cfg.MaxPayloadBytes, opts.ClientLimiter)
	e.router = newResultRouter(e.finish, logger)
	e.dispatcher = newDispatcher(cfg, less, lifecycle, e.router, logger, opts.Metrics)
	e.assembler = newAssembler(
		cfg.MaxBatchSize, cfg.MaxBatchWait, e.dispatcher.enqueue, logger, opts.Metrics)
	return e, nil
}

// Start spawns the initial worker pool and the dispatch and heartbeat
// loops. Cancelling ctx shuts the engine down.
func (e *Engine) Start(ctx context.Context) error {
	if e.started.Swap(true) {
		return fmt.Errorf("engine already started")
	}

	for modelID, workers := range e.models {
		if workers < e.cfg.MinWorkersPerModel {
			workers = e.cfg.MinWorkersPerModel
		}
		if workers > e.cfg.MaxWorkersPerModel {
			workers = e.cfg.MaxWorkersPerModel
		}
		for i := 0; i < workers; i++ {
			w, err := e.dispatcher.lifecycle.SpawnWorker(ctx, modelID)
			if err != nil {
				return fmt.Errorf("spawn initial worker for %q: %w", modelID, err)
			}
			e.dispatcher.addWorker(w)
		}
		e.logger.Info("worker pool ready",
			zap.String("model", modelID), zap.Int("workers", workers))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.stop = cancel
	go e.dispatcher.run(runCtx)
	go e.dispatcher.monitor(runCtx)
	go func() {
		select {
		case <-ctx.Done():
			_ = e.Close()
		case <-runCtx.Done():
		}
	}()
	return nil
}

// Submit admits a request into the pipeline. Rejections are synchronous;
// accepted requests resolve exactly once through the returned handle, no
// later than the request deadline.
func (e *Engine) Submit(ctx context.Context, req *types.ClassificationRequest) (*Handle, error) {
	e.submitted.Add(1)

	if !e.started.Load() || e.closed.Load() {
		e.rejected.Add(1)
		return nil, types.NewError(types.ErrShuttingDown, "scheduler is not accepting requests")
	}
	if _, ok := e.models[req.Model]; !ok {
		e.rejected.Add(1)
		return nil, types.NewError(types.ErrModelNotFound,
			fmt.Sprintf("model %q is not served", req.Model)).WithModel(req.Model)
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.SubmittedAt = time.Now()
	if req.Deadline.IsZero() {
		req.Deadline = req.SubmittedAt.Add(e.cfg.RequestDeadline)
	}

	if aerr := e.admission.admit(ctx, req); aerr != nil {
		e.rejected.Add(1)
		e.metrics.RecordRejection(string(aerr.Code))
		e.logger.Debug("request rejected at admission",
			zap.String("request_id", req.ID),
			zap.String("client_id", req.ClientID),
			zap.String("reason", string(aerr.Code)),
		)
		return nil, aerr
	}

	e.accepted.Add(1)
	e.metrics.AddInflight(1)

	p := newPending(req)
	p.deadlineTimer = time.AfterFunc(time.Until(req.Deadline), func() { e.expire(p) })

	if !e.assembler.add(p) {
		e.finish(p, &types.PredictionResult{
			RequestID: req.ID,
			Err:       types.NewError(types.ErrShuttingDown, "scheduler is shutting down"),
		}, "shutdown")
	}

	return &Handle{engine: e, p: p}, nil
}

// expire enforces the end-to-end deadline: the request fails now, and if
// it still sits in an open batch it is withdrawn without affecting its
// siblings. A dispatched request keeps its seat (the batch is committed)
// but its caller is unblocked immediately.
func (e *Engine) expire(p *pending) {
	if p.terminal() {
		return
	}
	if !p.dispatched.Load() {
		e.assembler.remove(p)
	}
	e.finish(p, &types.PredictionResult{
		RequestID: p.req.ID,
		Err: types.NewError(types.ErrDeadlineExceeded,
			"request deadline elapsed before a result was produced"),
	}, "deadline_exceeded")
}

// cancel implements Handle.Cancel.
func (e *Engine) cancel(p *pending) {
	if p.dispatched.Load() || p.terminal() {
		return
	}
	e.assembler.remove(p)
	e.finish(p, &types.PredictionResult{
		RequestID: p.req.ID,
		Err:       types.NewError(types.ErrCancelled, "cancelled by caller"),
	}, "cancelled")
}

// finish records a terminal outcome exactly once: it fulfills the sink,
// releases admission counters, and updates metrics. Losing the
// fulfillment race is not an error; the first outcome wins.
func (e *Engine) finish(p *pending, res *types.PredictionResult, outcome string) {
	if !p.fulfill(res) {
		return
	}
	if t := p.deadlineTimer; t != nil {
		t.Stop()
	}
	e.admission.release(p.req.ClientID)
	e.metrics.AddInflight(-1)
	e.metrics.RecordOutcome(p.req.Model, p.req.Priority.String(), outcome)
	if res.Err == nil {
		e.completed.Add(1)
	} else {
		e.failed.Add(1)
	}
}

// Healthy reports whether every configured model has at least one
// non-dead worker.
func (e *Engine) Healthy() bool {
	if !e.started.Load() || e.closed.Load() {
		return false
	}
	for modelID := range e.models {
		if !e.dispatcher.healthyFor(modelID) {
			return false
		}
	}
	return true
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Submitted: e.submitted.Load(),
		Accepted:  e.accepted.Load(),
		Rejected:  e.rejected.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
		Inflight:  e.admission.inflight(),
	}
}

// Close drains the engine: admission stops first, queued requests fail
// terminally so no sink is left unfulfilled, in-flight batches run to
// completion, and all workers are terminated.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.logger.Info("engine shutting down")

	shutdownErr := types.NewError(types.ErrShuttingDown, "scheduler is shutting down")

	for _, p := range e.assembler.close() {
		e.finish(p, &types.PredictionResult{RequestID: p.req.ID, Err: shutdownErr}, "shutdown")
	}
	for _, b := range e.dispatcher.close() {
		b.setState(BatchFailed)
		e.router.failAll(b, shutdownErr, "shutdown")
	}

	e.dispatcher.wait()
	if e.stop != nil {
		e.stop()
	}

	e.dispatcher.shutdownWorkers()

	e.logger.Info("engine stopped")
	return nil
}
