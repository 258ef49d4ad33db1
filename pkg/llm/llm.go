// Package llm abstracts prompt-in/text-out language-model backends.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Config keys understood by backend factories.
const (
	KeyAPIKey  = "api_key"
	KeyModel   = "model"
	KeyBaseURL = "base_url"
)

// ErrMissingAPIKey is returned by factories configured without credentials.
var ErrMissingAPIKey = errors.New("llm: api key not configured")

// Client completes a single system+user prompt and returns the raw model text.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Factory creates an instance of T from a config map.
type Factory[T any] func(config map[string]string) (T, error)

// Registry holds named factories for creating instances of T.
type Registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// NewRegistry creates a new empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		factories: make(map[string]Factory[T]),
	}
}

// Register adds a named factory to the registry.
func (r *Registry[T]) Register(name string, factory Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates T using the named factory.
func (r *Registry[T]) Create(name string, config map[string]string) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown llm backend %q (registered: %v)", name, r.List())
	}

	return factory(config)
}

// List returns all registered factory names, sorted.
func (r *Registry[T]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backends is the process-wide registry that backend packages register into
// from their init functions.
var Backends = NewRegistry[Client]()
