// Package loader defines the narrow interface between the plugin manager
// and the host's extension-execution machinery. The manager only drives
// lifecycle entry points; loading and running plugin code is the host's job.
package loader

import (
	"context"
	"sync"
)

// Loadable is one loaded extension unit. OnEnable is called when the
// plugin transitions to Enabled; units that also implement Disableable get
// a callback on the way down.
type Loadable interface {
	OnEnable(ctx context.Context) error
}

// Disableable is optionally implemented by units that need teardown
type Disableable interface {
	OnDisable() error
}

// Factory produces a Loadable from an install directory. The host supplies
// this; a nil factory means lifecycle hooks are skipped entirely.
type Factory func(ctx context.Context, installPath string) (Loadable, error)

// Registry holds the loaded units keyed by plugin id
type Registry struct {
	mu    sync.RWMutex
	units map[string]Loadable
}

// NewRegistry creates an empty unit registry
func NewRegistry() *Registry {
	return &Registry{units: make(map[string]Loadable)}
}

// Put records the loaded unit for a plugin
func (r *Registry) Put(id string, unit Loadable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[id] = unit
}

// Get returns the loaded unit for a plugin, if any
func (r *Registry) Get(id string) (Loadable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[id]
	return u, ok
}

// Remove drops the unit for a plugin, calling OnDisable when implemented
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.units[id]
	delete(r.units, id)
	if !ok {
		return nil
	}
	if d, ok := u.(Disableable); ok {
		return d.OnDisable()
	}
	return nil
}
