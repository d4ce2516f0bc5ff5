// Package registry provides a named factory registry for pluggable backends.
// It allows testmemo to open only the backend selected in configuration.
package registry

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/albertocavalcante/testmemo/pkg/config"
)

// ErrUnknownBackend is returned when no factory is registered under a name.
var ErrUnknownBackend = errors.New("unknown backend")

// Factory opens a backend from configuration.
type Factory[T any] func(cfg *config.Config, root string) (T, error)

// Registry maps backend names to their factories.
type Registry[T any] struct {
	kind string

	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// New creates an empty registry. kind names the backend family in errors
// (e.g., "storage").
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:      kind,
		factories: make(map[string]Factory[T]),
	}
}

// Register registers a factory, replacing any previous one with the same name.
// This allows external packages to add new backends.
func (r *Registry[T]) Register(name string, factory Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Open creates the backend registered under name for the workspace at root.
func (r *Registry[T]) Open(name string, cfg *config.Config, root string) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s backend %q (available: %s)",
			ErrUnknownBackend, r.kind, name, strings.Join(r.Available(), ", "))
	}
	return factory(cfg, root)
}

// Available returns the registered backend names in sorted order.
func (r *Registry[T]) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}
