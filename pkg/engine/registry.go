package engine

import (
	"sort"
	"sync"
)

// Plugin extends the engine with an optional capability. The runner only
// cares that a plugin has a stable identifier; everything else is engine
// business.
type Plugin interface {
	Name() string
}

// PluginFactory constructs a plugin instance.
type PluginFactory func() Plugin

// Registry maps stable string identifiers to plugin factories. It
// replaces the original runtime class loading with an explicit mapping
// populated at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]PluginFactory
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]PluginFactory),
	}
}

// Register adds a factory under the given identifier, replacing any
// earlier registration.
func (r *Registry) Register(name string, factory PluginFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Lookup returns the factory for the identifier.
func (r *Registry) Lookup(name string) (PluginFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names returns all registered identifiers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
