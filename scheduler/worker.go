package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/model"
)

// WorkerState is the lifecycle state of a worker.
type WorkerState int32

const (
	// WorkerIdle can accept a batch.
	WorkerIdle WorkerState = iota
	// WorkerBusy is running exactly one batch.
	WorkerBusy
	// WorkerDraining finishes its current batch and then stops.
	WorkerDraining
	// WorkerDead is removed from scheduling and awaits termination.
	WorkerDead
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerBusy:
		return "busy"
	case WorkerDraining:
		return "draining"
	case WorkerDead:
		return "dead"
	default:
		return "unknown"
	}
}

// WorkerHandle tracks one worker owning one loaded model instance. State
// transitions are driven by the dispatcher; the handle itself is passive.
type WorkerHandle struct {
	id      string
	modelID string
	model   model.Model

	state         atomic.Int32
	lastHeartbeat atomic.Int64 // unix nanos
}

// NewWorkerHandle wraps a loaded model instance as an idle worker.
func NewWorkerHandle(modelID string, m model.Model) *WorkerHandle {
	w := &WorkerHandle{
		id:      uuid.NewString(),
		modelID: modelID,
		model:   m,
	}
	w.beat(time.Now())
	return w
}

// ID returns the worker identifier.
func (w *WorkerHandle) ID() string { return w.id }

// ModelID returns the identifier of the loaded model.
func (w *WorkerHandle) ModelID() string { return w.modelID }

// State returns the worker's current state.
func (w *WorkerHandle) State() WorkerState { return WorkerState(w.state.Load()) }

func (w *WorkerHandle) setState(s WorkerState) { w.state.Store(int32(s)) }

func (w *WorkerHandle) beat(now time.Time) { w.lastHeartbeat.Store(now.UnixNano()) }

// LastHeartbeat returns the time of the worker's last healthy heartbeat.
func (w *WorkerHandle) LastHeartbeat() time.Time {
	return time.Unix(0, w.lastHeartbeat.Load())
}

// Lifecycle provisions and terminates workers. The scheduling core
// decides when to call it, not how provisioning happens; a process or
// container manager is one possible implementation.
type Lifecycle interface {
	SpawnWorker(ctx context.Context, modelID string) (*WorkerHandle, error)
	TerminateWorker(ctx context.Context, w *WorkerHandle) error
}

// LocalLifecycle provisions workers in-process by loading model instances
// through a model.Loader.
type LocalLifecycle struct {
	loader model.Loader
}

// NewLocalLifecycle creates a lifecycle backed by the given loader.
func NewLocalLifecycle(loader model.Loader) *LocalLifecycle {
	return &LocalLifecycle{loader: loader}
}

func (l *LocalLifecycle) SpawnWorker(ctx context.Context, modelID string) (*WorkerHandle, error) {
	m, err := l.loader.Load(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("spawn worker for model %q: %w", modelID, err)
	}
	return NewWorkerHandle(modelID, m), nil
}

func (l *LocalLifecycle) TerminateWorker(_ context.Context, w *WorkerHandle) error {
	return w.model.Close()
}

// workerPool indexes workers by model. All access is guarded by the
// dispatcher's mutex; the pool has no locking of its own.
type workerPool struct {
	byModel map[string][]*WorkerHandle
}

func newWorkerPool() *workerPool {
	return &workerPool{byModel: make(map[string][]*WorkerHandle)}
}

func (wp *workerPool) add(w *WorkerHandle) {
	wp.byModel[w.modelID] = append(wp.byModel[w.modelID], w)
}

func (wp *workerPool) remove(w *WorkerHandle) {
	workers := wp.byModel[w.modelID]
	for i, cur := range workers {
		if cur == w {
			wp.byModel[w.modelID] = append(workers[:i], workers[i+1:]...)
			return
		}
	}
}

// idleFor returns an idle worker for the model, or nil.
func (wp *workerPool) idleFor(modelID string) *WorkerHandle {
	for _, w := range wp.byModel[modelID] {
		if w.State() == WorkerIdle {
			return w
		}
	}
	return nil
}

// countFor returns how many workers serve the model, in any state.
func (wp *workerPool) countFor(modelID string) int {
	return len(wp.byModel[modelID])
}

// healthyFor reports whether at least one non-dead worker serves the model.
func (wp *workerPool) healthyFor(modelID string) bool {
	for _, w := range wp.byModel[modelID] {
		if w.State() != WorkerDead {
			return true
		}
	}
	return false
}

// all returns a snapshot of every worker in the pool.
func (wp *workerPool) all() []*WorkerHandle {
	var out []*WorkerHandle
	for _, workers := range wp.byModel {
		out = append(out, workers...)
	}
	return out
}
