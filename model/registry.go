package model

import (
	"context"
	"fmt"
	"sync"
)

// Factory builds a fresh Model instance. Each worker owns its own
// instance, so the factory is invoked once per worker.
type Factory func(ctx context.Context) (Model, error)

// Registry maps model identifiers to factories and implements Loader.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given model identifier, replacing any
// previous registration.
func (r *Registry) Register(modelID string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[modelID] = f
}

// Known reports whether a model identifier has a registered factory.
func (r *Registry) Known(modelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[modelID]
	return ok
}

// Names returns the registered model identifiers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Load implements Loader by invoking the registered factory.
func (r *Registry) Load(ctx context.Context, modelID string) (Model, error) {
	r.mu.RLock()
	f, ok := r.factories[modelID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("model %q is not registered", modelID)
	}
	m, err := f(ctx)
	if err != nil {
		return nil, fmt.Errorf("load model %q: %w", modelID, err)
	}
	return m, nil
}
