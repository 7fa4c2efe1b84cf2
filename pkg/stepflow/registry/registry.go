// Package registry provides a thread-safe generic registry.
//
// The engine uses it to track background runs by run ID (written by the
// executing goroutine, read by arbitrary pollers) and to resolve named
// executors when building workflows from declarative configs.
package registry

import "sync"

// Registry is a thread-safe registry for values indexed by key.
// It uses sync.RWMutex for read-heavy workloads such as run polling.
type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// New creates a new empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]V),
	}
}

// Register adds or updates a value in the registry.
func (r *Registry[K, V]) Register(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = value
}

// Get returns the value for a key and whether it exists.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Has returns true if the key exists in the registry.
func (r *Registry[K, V]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Delete removes a key from the registry.
func (r *Registry[K, V]) Delete(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Keys returns all keys in the registry.
// The order is not guaranteed.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]K, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of entries in the registry.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range iterates over all entries in the registry.
// The function fn is called for each entry. If fn returns false,
// iteration stops.
//
// Range iterates over a snapshot of the registry, so it is safe to call
// Register or Delete from fn without affecting the current iteration.
func (r *Registry[K, V]) Range(fn func(K, V) bool) {
	r.mu.RLock()
	snapshot := make(map[K]V, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

// Update applies fn to the current value for key under the write lock and
// stores the result. If the key is absent, fn receives the zero value.
// Run status transitions use this to stay atomic with respect to pollers.
func (r *Registry[K, V]) Update(key K, fn func(V) V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = fn(r.entries[key])
}
