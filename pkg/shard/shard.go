// Package shard provides a concurrent map split into independently locked
// shards. Keys are placed by a caller-supplied hash; for identifier keys the
// hashers in pkg/ulid are used directly since the keys are already uniform.
package shard

import (
	"sync"

	"github.com/nstogner/tapestry/pkg/ulid"
)

const defaultShards = 32

// Map is a sharded map from K to V. The zero value is not usable; construct
// with New, NewIDMap or NewUint64Map.
type Map[K comparable, V any] struct {
	hash   func(K) uint64
	shards []*bucket[K, V]
}

type bucket[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// New returns a map with n shards placed by hash. n <= 0 selects a default.
func New[K comparable, V any](n int, hash func(K) uint64) *Map[K, V] {
	if n <= 0 {
		n = defaultShards
	}
	m := &Map[K, V]{hash: hash, shards: make([]*bucket[K, V], n)}
	for i := range m.shards {
		m.shards[i] = &bucket[K, V]{m: make(map[K]V)}
	}
	return m
}

// NewIDMap returns a map keyed by ulid.ID using ulid.Hasher placement.
func NewIDMap[V any]() *Map[ulid.ID, V] {
	return New[ulid.ID, V](defaultShards, ulid.HashID)
}

// NewUint64Map returns a map keyed by random 64-bit ids using ulid.IntHasher
// placement.
func NewUint64Map[V any]() *Map[uint64, V] {
	return New[uint64, V](defaultShards, ulid.HashUint64)
}

func (m *Map[K, V]) bucket(k K) *bucket[K, V] {
	return m.shards[m.hash(k)%uint64(len(m.shards))]
}

func (m *Map[K, V]) Get(k K) (V, bool) {
	b := m.bucket(k)
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.m[k]
	return v, ok
}

func (m *Map[K, V]) Set(k K, v V) {
	b := m.bucket(k)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[k] = v
}

// GetOrCreate returns the value for k, calling create under the shard lock
// if it is absent. create errors are returned without storing anything.
func (m *Map[K, V]) GetOrCreate(k K, create func() (V, error)) (V, bool, error) {
	b := m.bucket(k)
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.m[k]; ok {
		return v, true, nil
	}
	v, err := create()
	if err != nil {
		var zero V
		return zero, false, err
	}
	b.m[k] = v
	return v, false, nil
}

// Delete removes k and returns the removed value.
func (m *Map[K, V]) Delete(k K) (V, bool) {
	b := m.bucket(k)
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.m[k]
	delete(b.m, k)
	return v, ok
}

func (m *Map[K, V]) Len() int {
	n := 0
	for _, b := range m.shards {
		b.mu.RLock()
		n += len(b.m)
		b.mu.RUnlock()
	}
	return n
}

// Range calls fn for each entry until fn returns false. Each shard is read
// locked while it is visited, so fn must not modify the map.
func (m *Map[K, V]) Range(fn func(K, V) bool) {
	for _, b := range m.shards {
		b.mu.RLock()
		for k, v := range b.m {
			if !fn(k, v) {
				b.mu.RUnlock()
				return
			}
		}
		b.mu.RUnlock()
	}
}
