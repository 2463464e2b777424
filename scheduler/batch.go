package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/types"
)

// BatchState is the lifecycle state of a batch.
type BatchState int32

const (
	// BatchOpen accepts further requests.
	BatchOpen BatchState = iota
	// BatchSealed is full or timed out; ownership moves to the dispatcher.
	BatchSealed
	// BatchDispatched is assigned to exactly one worker.
	BatchDispatched
	// BatchCompleted delivered results for all of its requests.
	BatchCompleted
	// BatchFailed terminated without usable results.
	BatchFailed
)

func (s BatchState) String() string {
	switch s {
	case BatchOpen:
		return "open"
	case BatchSealed:
		return "sealed"
	case BatchDispatched:
		return "dispatched"
	case BatchCompleted:
		return "completed"
	case BatchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Batch is an ordered group of requests for one model at one priority.
// The request slice is owned by the assembler's bucket while OPEN and by
// the dispatcher afterwards; insertion order is the fairness order.
type Batch struct {
	id       string
	model    string
	priority types.Priority
	maxWait  time.Duration

	// createdAt is set when the first request lands, so an idle bucket's
	// standing batch does not age while empty.
	createdAt time.Time
	state     atomic.Int32
	reqs      []*pending
}

func newBatch(model string, priority types.Priority, maxWait time.Duration) *Batch {
	return &Batch{
		id:       uuid.NewString(),
		model:    model,
		priority: priority,
		maxWait:  maxWait,
	}
}

// ID returns the batch identifier.
func (b *Batch) ID() string { return b.id }

// Model returns the target model identifier.
func (b *Batch) Model() string { return b.model }

// Priority returns the batch's priority class.
func (b *Batch) Priority() types.Priority { return b.priority }

// CreatedAt returns the time the first request entered the batch.
func (b *Batch) CreatedAt() time.Time { return b.createdAt }

// Size returns the number of requests currently in the batch.
func (b *Batch) Size() int { return len(b.reqs) }

// State returns the batch lifecycle state.
func (b *Batch) State() BatchState { return BatchState(b.state.Load()) }

func (b *Batch) setState(s BatchState) { b.state.Store(int32(s)) }

// Escalated reports whether the batch has waited past its max-wait budget
// and must jump ahead of fresher higher-priority batches.
func (b *Batch) Escalated(now time.Time) bool {
	return now.Sub(b.createdAt) > b.maxWait
}

// Comparator orders ready batches; it returns true when a should be
// dispatched before b. The dispatch policy is pluggable because priority
// versus fairness trade-offs have no single correct answer.
type Comparator func(now time.Time, a, b *Batch) bool

// DefaultComparator dispatches escalated batches first (oldest first),
// then by descending priority, then by age.
func DefaultComparator(now time.Time, a, b *Batch) bool {
	ae, be := a.Escalated(now), b.Escalated(now)
	if ae != be {
		return ae
	}
	if !ae && a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.createdAt.Before(b.createdAt)
}
