// Package memo provides a concurrent get-or-create map.
//
// A [Map] builds a value with a caller-supplied factory the first time a key
// is requested and returns the stored value on every later request. Concurrent
// requests for the same missing key share a single factory call; failed
// factory calls are not cached, so the next request tries again.
package memo

import (
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Map is a get-or-create cache safe for concurrent use.
//
// The zero value is not usable; create one with [New].
type Map[K comparable, V any] struct {
	mu     sync.RWMutex
	values map[K]V
	group  singleflight.Group

	// flight names per key, so keys that print alike never share a flight
	flights map[K]string
}

// New creates an empty [Map].
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		values:  make(map[K]V),
		flights: make(map[K]string),
	}
}

// Get returns the stored value for key, if any.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok
}

// GetOrCreate returns the value stored for key, calling factory to build and
// store it on a miss.
//
// The factory runs at most once at a time per key. Callers that arrive while
// a factory is running wait for it and receive its result. A factory error is
// returned to every waiting caller and nothing is stored.
func (m *Map[K, V]) GetOrCreate(key K, factory func() (V, error)) (V, error) {
	if v, ok := m.Get(key); ok {
		return v, nil
	}

	res, err, _ := m.group.Do(m.flightKey(key), func() (interface{}, error) {
		// a previous flight may have stored the value between Get and Do
		if v, ok := m.Get(key); ok {
			return v, nil
		}

		v, err := factory()
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.values[key] = v
		m.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// flightKey returns the singleflight key for key, assigning one on first use.
func (m *Map[K, V]) flightKey(key K) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.flights[key]
	if !ok {
		id = strconv.Itoa(len(m.flights))
		m.flights[key] = id
	}
	return id
}

// Len returns the number of stored values.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// Range calls fn for each stored value until fn returns false.
//
// Range iterates over a snapshot; fn may call other Map methods.
func (m *Map[K, V]) Range(fn func(K, V) bool) {
	m.mu.RLock()
	snapshot := make(map[K]V, len(m.values))
	for k, v := range m.values {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}
