package tracker

import (
	"sort"
	"sync"

	"github.com/ralph-tui/ralph-tui/internal/core"
)

// Registry looks up a core.TrackerFactory by plugin id - a registry
// lookup, never virtual dispatch through a hierarchy (§9), matching the
// Agent Adapter registry's shape.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]core.TrackerFactory
}

// NewRegistry returns a Registry pre-populated with the four built-in
// tracker variants (§4.1).
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]core.TrackerFactory)}
	r.RegisterFactory(core.TrackerJSONPRD, NewJSONPRDAdapterFactory)
	r.RegisterFactory(string(variantBeads), newBeadsFactory(variantBeads))
	r.RegisterFactory(string(variantBeadsRust), newBeadsFactory(variantBeadsRust))
	r.RegisterFactory(string(variantBeadsBv), newBeadsFactory(variantBeadsBv))
	return r
}

// RegisterFactory installs or replaces the factory for a plugin id.
func (r *Registry) RegisterFactory(name string, factory core.TrackerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// New constructs a tracker adapter for the given plugin id, cwd, and
// options.
func (r *Registry) New(name, cwd string, opts core.TrackerOptions) (core.TrackerAdapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, core.ErrConfig("TRACKER_UNKNOWN", "unknown tracker: "+name)
	}
	return factory(cwd, opts)
}

// List returns the registered plugin ids, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
