// internal/cache/lru.go
//
// Bounded, concurrency-safe LRU used as the process-local (L1) tier.
//
// Context
// -------
// The L1 tier is bounded two ways: by entry count and by an approximate
// byte budget.  Count pressure is handled by simplelru itself; the byte
// budget is enforced here by dropping the oldest entries until the total
// fits again.  Either bound evicts least-recently-used entries first.
//
// Notes
// -----
//   - One mutex guards the list.  Get mutates recency, so there is no
//     read-only fast path.
//   - OnEvict fires for pressure evictions only, never for Remove, and
//     always after the lock is released.
package cache

import (
	"errors"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// ErrTooLarge is returned by Add when a single value exceeds the byte budget.
var ErrTooLarge = errors.New("cache: value exceeds l1 byte budget")

// LRU is a generic least-recently-used cache with count and size bounds.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	ll       *simplelru.LRU[K, sized[V]]
	maxBytes int64
	bytes    int64
	sizeOf   func(V) int64
	onEvict  func(K, V)

	// pressure is set while Add runs so the simplelru callback can tell an
	// eviction from an explicit Remove.
	pressure bool
	evicted  []pair[K, V]
}

type sized[V any] struct {
	val  V
	size int64
}

type pair[K comparable, V any] struct {
	key K
	val V
}

// LRUOptions tunes NewLRU.  A zero MaxBytes disables the byte budget.
type LRUOptions[K comparable, V any] struct {
	MaxEntries int
	MaxBytes   int64
	SizeOf     func(V) int64
	OnEvict    func(K, V)
}

// NewLRU returns an empty LRU.  MaxEntries must be ≥1.
func NewLRU[K comparable, V any](opts LRUOptions[K, V]) (*LRU[K, V], error) {
	c := &LRU[K, V]{
		maxBytes: opts.MaxBytes,
		sizeOf:   opts.SizeOf,
		onEvict:  opts.OnEvict,
	}
	if c.sizeOf == nil {
		c.sizeOf = func(V) int64 { return 1 }
	}
	ll, err := simplelru.NewLRU[K, sized[V]](opts.MaxEntries, c.dropped)
	if err != nil {
		return nil, err
	}
	c.ll = ll
	return c, nil
}

// dropped runs under c.mu for every removal simplelru performs.
func (c *LRU[K, V]) dropped(key K, e sized[V]) {
	c.bytes -= e.size
	if c.pressure {
		c.evicted = append(c.evicted, pair[K, V]{key, e.val})
	}
}

// Get retrieves a value and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.ll.Get(key)
	return e.val, ok
}

// Peek retrieves a value without touching recency.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.ll.Peek(key)
	return e.val, ok
}

// Add inserts or replaces a value and returns how many entries were evicted
// to make room for it.  A value over the byte budget is not stored and
// removes any existing entry for key.
func (c *LRU[K, V]) Add(key K, val V) (int, error) {
	size := c.sizeOf(val)
	if c.maxBytes > 0 && size > c.maxBytes {
		c.mu.Lock()
		c.ll.Remove(key)
		c.mu.Unlock()
		return 0, ErrTooLarge
	}

	c.mu.Lock()
	if old, ok := c.ll.Peek(key); ok {
		c.bytes -= old.size
	}
	c.pressure = true
	c.ll.Add(key, sized[V]{val: val, size: size})
	c.bytes += size
	for c.maxBytes > 0 && c.bytes > c.maxBytes {
		if _, _, ok := c.ll.RemoveOldest(); !ok {
			break
		}
	}
	c.pressure = false
	evicted := c.evicted
	c.evicted = nil
	c.mu.Unlock()

	if c.onEvict != nil {
		for _, p := range evicted {
			c.onEvict(p.key, p.val)
		}
	}
	return len(evicted), nil
}

// Remove deletes key and reports whether it was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Remove(key)
}

// RemoveFunc deletes every key for which match returns true and returns the
// number removed.
func (c *LRU[K, V]) RemoveFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, k := range c.ll.Keys() {
		if match(k) && c.ll.Remove(k) {
			n++
		}
	}
	return n
}

// Len reports current entry count.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Bytes reports the approximate size of all held values.
func (c *LRU[K, V]) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Purge drops every entry.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Purge()
	c.bytes = 0
}
