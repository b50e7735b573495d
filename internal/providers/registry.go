package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudreg/regsync/pkg/config"
)

// Registry maps provider type names to factories. Adding a vendor means
// registering a new factory, not modifying the engine.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry that built-in
// providers register into at init time.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register installs a factory under a type name. Later registrations for
// the same name win, which lets tests swap in fakes.
func (r *Registry) Register(typeName string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = factory
}

// Build constructs a Provider for the given configuration.
func (r *Registry) Build(ctx context.Context, cfg config.ProviderConfig) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider type %q (registered: %v)", cfg.Type, r.Types())
	}
	return factory(ctx, cfg)
}

// Types lists registered type names in stable order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
