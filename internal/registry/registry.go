// Package registry provides the in-memory category registry.
package registry

import (
	"iter"
	"maps"
	"slices"
	"sync"
)

// Registry owns a set of categories keyed by name, with thread-safe operations.
type Registry struct {
	mu         sync.RWMutex
	categories map[string]*Category
	closed     bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		categories: make(map[string]*Category),
	}
}

// GetOrCreate returns the named category, creating an empty one if needed.
func (r *Registry) GetOrCreate(name string) (*Category, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	r.mu.RLock()
	c, ok := r.categories[name]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrRegistryClosed
	}
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	// Another caller may have created it between the two locks
	if c, ok := r.categories[name]; ok {
		return c, nil
	}

	c = NewCategory(name)
	r.categories[name] = c
	return c, nil
}

// Get returns the named category if present.
func (r *Registry) Get(name string) (*Category, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.categories[name]
	return c, ok
}

// Remove deletes the named category and returns it.
func (r *Registry) Remove(name string) (*Category, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.categories[name]
	if ok {
		delete(r.categories, name)
	}
	return c, ok
}

// Names returns the category names present when Names was called, sorted.
func (r *Registry) Names() iter.Seq[string] {
	r.mu.RLock()
	names := slices.Sorted(maps.Keys(r.categories))
	r.mu.RUnlock()

	return slices.Values(names)
}

// Len returns the number of categories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.categories)
}

// Snapshot returns every category's data as {name: data, ...}.
func (r *Registry) Snapshot() Value {
	r.mu.RLock()
	cats := slices.Collect(maps.Values(r.categories))
	r.mu.RUnlock()

	out := make(map[string]Value, len(cats))
	for _, c := range cats {
		out[c.Name()] = c.Data()
	}
	return Mapping(out)
}

// MarshalJSON writes the registry snapshot.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return r.Snapshot().MarshalJSON()
}

// Close drops every category. Later GetOrCreate calls fail.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	clear(r.categories)
	return nil
}

// Errors
var (
	ErrEmptyName      = registryError("category name is empty")
	ErrRegistryClosed = registryError("registry is closed")
	ErrEmptyKey       = registryError("key is empty")
	ErrUnknownOp      = registryError("unknown operation")
	ErrNonFinite      = registryError("number is not representable in JSON")
)

type registryError string

func (e registryError) Error() string {
	return string(e)
}
