package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/internal/limiter"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/types"
)

// admissionController accepts or rejects requests before they consume any
// pipeline resources. Rejections are synchronous and never reach the
// batch assembler.
type admissionController struct {
	globalLimit int
	clientLimit int
	maxPayload  int
	limiter     limiter.ClientLimiter

	mu        sync.Mutex
	global    int
	perClient map[string]int
}

func newAdmissionController(globalLimit, clientLimit, maxPayload int, l limiter.ClientLimiter) *admissionController {
	if l == nil {
		l = limiter.Unlimited{}
	}
	return &admissionController{
		globalLimit: globalLimit,
		clientLimit: clientLimit,
		maxPayload:  maxPayload,
		limiter:     l,
		perClient:   make(map[string]int),
	}
}

// admit checks the request against the configured ceilings in order:
// global in-flight count, per-client in-flight count, payload size,
// per-client request rate. On acceptance the in-flight counters are
// incremented; release undoes them on the terminal outcome.
func (a *admissionController) admit(ctx context.Context, req *types.ClassificationRequest) *types.Error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.global >= a.globalLimit {
		return types.NewError(types.ErrRejectedOverloaded,
			fmt.Sprintf("global in-flight limit of %d reached", a.globalLimit)).
			WithRetryable(true)
	}
	if a.perClient[req.ClientID] >= a.clientLimit {
		return types.NewError(types.ErrRejectedRateLimited,
			fmt.Sprintf("client %q in-flight limit of %d reached", req.ClientID, a.clientLimit)).
			WithRetryable(true)
	}
	if len(req.Payload) > a.maxPayload {
		return types.NewError(types.ErrRejectedPayloadTooLarge,
			fmt.Sprintf("payload of %d bytes exceeds limit of %d", len(req.Payload), a.maxPayload))
	}
	// The limiter runs last so doomed requests never consume rate tokens.
	if !a.limiter.Allow(ctx, req.ClientID) {
		return types.NewError(types.ErrRejectedRateLimited,
			fmt.Sprintf("client %q exceeded its request rate", req.ClientID)).
			WithRetryable(true)
	}

	a.global++
	a.perClient[req.ClientID]++
	return nil
}

// release decrements the in-flight counters for a terminal outcome.
func (a *admissionController) release(clientID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.global > 0 {
		a.global--
	}
	if n := a.perClient[clientID]; n <= 1 {
		delete(a.perClient, clientID)
	} else {
		a.perClient[clientID] = n - 1
	}
}

// inflight returns the global in-flight count.
func (a *admissionController) inflight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.global
}
