package model

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/types"
)

// Mock is a configurable in-memory Model for tests and local development.
// The zero value classifies every payload as "unknown" with confidence 1.
type Mock struct {
	ModelID string
	// Latency is added per Predict call before producing results.
	Latency time.Duration
	// Categories, when set, is returned for every item.
	Categories []types.Category
	// BatchErr, when set, fails the whole batch.
	BatchErr error
	// ItemErr, when set, fails the item at ItemErrIndex only.
	ItemErr      error
	ItemErrIndex int
	// ExtraResults appends bogus trailing results, simulating a backend
	// that violates the positional-alignment contract.
	ExtraResults int
	// Hang makes Predict block until the context is cancelled.
	Hang bool
	// Unhealthy makes Healthy report false.
	Unhealthy atomic.Bool

	calls  atomic.Int64
	items  atomic.Int64
	closed atomic.Bool
}

var _ Model = (*Mock)(nil)

// NewMock creates a mock model serving the given identifier.
func NewMock(modelID string) *Mock {
	return &Mock{ModelID: modelID}
}

func (m *Mock) ID() string {
	if m.ModelID == "" {
		return "mock"
	}
	return m.ModelID
}

func (m *Mock) Predict(ctx context.Context, payloads [][]byte) ([]Prediction, error) {
	m.calls.Add(1)
	m.items.Add(int64(len(payloads)))

	if m.Hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.BatchErr != nil {
		return nil, m.BatchErr
	}

	preds := make([]Prediction, len(payloads)+m.ExtraResults)
	for i := range preds {
		if m.ItemErr != nil && i == m.ItemErrIndex {
			preds[i] = Prediction{Err: m.ItemErr}
			continue
		}
		cats := m.Categories
		if cats == nil {
			cats = []types.Category{{Label: "unknown", Confidence: 1}}
		}
		preds[i] = Prediction{Categories: cats}
	}
	return preds, nil
}

func (m *Mock) Healthy() bool {
	return !m.Unhealthy.Load() && !m.closed.Load()
}

func (m *Mock) Close() error {
	m.closed.Store(true)
	return nil
}

// Calls returns how many batches Predict has served.
func (m *Mock) Calls() int64 { return m.calls.Load() }

// Items returns how many individual payloads Predict has served.
func (m *Mock) Items() int64 { return m.items.Load() }
