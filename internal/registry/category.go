package registry

import (
	"iter"
	"maps"
	"slices"
	"sync"
)

// Category is a named key/value store. Every accessor operates on the same
// underlying map; there is no copy-on-write.
type Category struct {
	mu   sync.RWMutex
	name string
	data map[string]Value
}

// NewCategory makes an empty category.
func NewCategory(name string) *Category {
	return &Category{
		name: name,
		data: make(map[string]Value),
	}
}

// Name returns the category name.
func (c *Category) Name() string {
	return c.name
}

// Get returns the value stored under key.
func (c *Category) Get(key string) (Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (c *Category) Set(key string, value Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// Remove deletes key and returns the value it held.
func (c *Category) Remove(key string) (Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if ok {
		delete(c.data, key)
	}
	return v, ok
}

// Contains reports whether key is present.
func (c *Category) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[key]
	return ok
}

// Len returns the number of keys.
func (c *Category) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Keys returns the keys in sorted order.
func (c *Category) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.data))
}

// All iterates over a snapshot of the entries in key order.
// Mutating the category during iteration is allowed.
func (c *Category) All() iter.Seq2[string, Value] {
	c.mu.RLock()
	snapshot := maps.Clone(c.data)
	c.mu.RUnlock()

	return func(yield func(string, Value) bool) {
		for _, k := range slices.Sorted(maps.Keys(snapshot)) {
			if !yield(k, snapshot[k]) {
				return
			}
		}
	}
}

// Clear removes every key.
func (c *Category) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.data)
}

// Data returns the contents as a mapping Value.
func (c *Category) Data() Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Mapping(maps.Clone(c.data))
}

// ToSerializable returns {name: data}.
func (c *Category) ToSerializable() Value {
	return Mapping(map[string]Value{c.name: c.Data()})
}

// MarshalJSON writes the category as {name: data}.
func (c *Category) MarshalJSON() ([]byte, error) {
	return c.ToSerializable().MarshalJSON()
}

// Equal compares categories by name only. Two categories holding different
// data but sharing a name are equal. Use DeepEqual to compare contents.
func (c *Category) Equal(other *Category) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.name == other.name
}

// DeepEqual compares name and contents.
func (c *Category) DeepEqual(other *Category) bool {
	if !c.Equal(other) {
		return false
	}
	if c == other {
		return true
	}
	return c.Data().Equal(other.Data())
}
