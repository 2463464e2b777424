package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/types"
)

// pending wraps an accepted request with its single-fulfillment result
// sink. The sink is written at most once; the done flag guards it.
type pending struct {
	req  *types.ClassificationRequest
	sink chan *types.PredictionResult

	done       atomic.Bool
	dispatched atomic.Bool

	// deadlineTimer fires the end-to-end deadline; stopped on fulfillment.
	deadlineTimer *time.Timer
}

func newPending(req *types.ClassificationRequest) *pending {
	return &pending{
		req:  req,
		sink: make(chan *types.PredictionResult, 1),
	}
}

// fulfill writes the terminal result exactly once. It reports false when
// another outcome already won, in which case res is dropped.
func (p *pending) fulfill(res *types.PredictionResult) bool {
	if !p.done.CompareAndSwap(false, true) {
		return false
	}
	p.sink <- res
	close(p.sink)
	return true
}

// terminal reports whether the request already has an outcome.
func (p *pending) terminal() bool { return p.done.Load() }

// Handle is the caller's reference to an accepted request.
type Handle struct {
	engine *Engine
	p      *pending
}

// ID returns the request identifier.
func (h *Handle) ID() string { return h.p.req.ID }

// Await blocks until the request has a terminal result or ctx is done.
// The returned result carries either ranked categories or a terminal
// error in its Err field; the error return covers only caller-side
// cancellation of the wait itself.
func (h *Handle) Await(ctx context.Context) (*types.PredictionResult, error) {
	select {
	case res, ok := <-h.p.sink:
		if !ok {
			// Sink closed after delivery; the result was already consumed.
			return nil, context.Canceled
		}
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel withdraws the request if it has not been dispatched yet. After
// dispatch the batch is committed to a worker and cancellation is not
// honored; the caller still receives a terminal result.
func (h *Handle) Cancel() {
	h.engine.cancel(h.p)
}
