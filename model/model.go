// Package model defines the capability interface concrete inference
// backends implement, plus a registry for constructing them by name. The
// scheduling core depends only on this interface and never branches on a
// concrete model type.
package model

import (
	"context"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/types"
)

// Prediction is the per-item output of a batched model invocation.
// Backends that document per-item failure set Err on the affected items;
// the scheduling core passes those errors through unchanged.
type Prediction struct {
	Categories []types.Category
	Err        error
}

// Model is a loaded inference model. Predict runs one batch of raw image
// payloads and returns exactly one Prediction per input, positionally
// aligned. A batch-level error means no usable results were produced.
//
// Predict is called by at most one worker goroutine at a time per Model
// instance; implementations do not need internal batching or queueing.
type Model interface {
	// ID returns the model identifier this instance serves.
	ID() string

	// Predict runs inference on a batch of raw image payloads.
	Predict(ctx context.Context, payloads [][]byte) ([]Prediction, error)

	// Healthy reports whether the instance can serve further batches.
	Healthy() bool

	// Close releases the underlying resources.
	Close() error
}

// Loader constructs a ready Model instance for a model identifier. The
// scheduling core uses it when building or replacing workers and treats
// the loaded model as opaque.
type Loader interface {
	Load(ctx context.Context, modelID string) (Model, error)
}
