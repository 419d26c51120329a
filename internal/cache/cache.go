package cache

import "sync"

// Cache is a thread-safe LRU cache bounded by the total size of its values.
// The size of each value is reported by the caller.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*lruNode[K, V]
	order   lruList[K, V]
	size    int
	maxSize int

	hits, misses uint64
}

// New creates a cache holding at most maxSize units. A maxSize of 0 means
// unlimited.
func New[K comparable, V any](maxSize int) *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]*lruNode[K, V]),
		maxSize: maxSize,
	}
}

// Get returns the value stored under key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.moveToFront(node)
	return node.value, true
}

// Set stores value under key, evicting least recently used entries until the
// cache fits. A value larger than the whole cache is not stored.
func (c *Cache[K, V]) Set(key K, value V, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok {
		c.remove(old)
	}
	if c.maxSize > 0 && size > c.maxSize {
		return
	}
	node := &lruNode[K, V]{key: key, value: value, size: size}
	c.entries[key] = node
	c.order.pushFront(node)
	c.size += size
	for c.maxSize > 0 && c.size > c.maxSize {
		c.remove(c.order.back())
	}
}

// GetOrCreate returns the cached value or stores the result of create. An
// error from create is returned and nothing is stored. create runs without
// the lock held, so concurrent misses may each call it.
func (c *Cache[K, V]) GetOrCreate(key K, create func() (V, int, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, size, err := create()
	if err != nil {
		return v, err
	}
	c.Set(key, v, size)
	return v, nil
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{Len: len(c.entries), Size: c.size, MaxSize: c.maxSize, Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		st.HitRate = float64(c.hits) / float64(total)
	}
	return st
}

// Caller must hold c.mu.
func (c *Cache[K, V]) remove(node *lruNode[K, V]) {
	c.order.unlink(node)
	delete(c.entries, node.key)
	c.size -= node.size
}

// Stats contains cache statistics.
type Stats struct {
	Len     int
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}
