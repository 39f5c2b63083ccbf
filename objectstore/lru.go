package objectstore

import (
	"container/list"
	"sync"
	"time"
)

// EvictReason records why an entry left the cache, for stats and logging.
type EvictReason string

const (
	EvictLRU    EvictReason = "lru"
	EvictTTL    EvictReason = "ttl"
	EvictSize   EvictReason = "size"
	EvictManual EvictReason = "manual"
	EvictClear  EvictReason = "clear"
)

// LRUStats is a point-in-time snapshot of cache activity.
type LRUStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Count     int
	Bytes     int64
}

// HitRate returns Hits / (Hits+Misses), or 0 when there have been no lookups.
func (s LRUStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type lruEntry struct {
	key       string
	obj       Object
	expiresAt time.Time // zero means no TTL
}

// LRU is an O(1) get/put/evict cache bounded by both entry count and total
// byte size, with optional per-entry TTL. Eviction walks from the list's
// back (least recently used) until the cache is back under both limits.
//
// The hashmap holds *list.Element directly so every operation after the
// initial lookup is a pointer move, never a re-hash: the arena (the list)
// owns entry lifetime and the index (the map) only ever points into it.
type LRU struct {
	mu sync.Mutex

	maxCount int // 0 means unbounded
	maxBytes int64 // 0 means unbounded
	ttl      time.Duration // 0 means no expiry

	items map[string]*list.Element
	order *list.List // front = most recently used
	bytes int64

	onEvict func(key string, obj Object, reason EvictReason)

	stats LRUStats
}

// LRUOption configures an LRU at construction time.
type LRUOption func(*LRU)

func WithMaxCount(n int) LRUOption    { return func(l *LRU) { l.maxCount = n } }
func WithMaxBytes(n int64) LRUOption  { return func(l *LRU) { l.maxBytes = n } }
func WithTTL(d time.Duration) LRUOption { return func(l *LRU) { l.ttl = d } }
func WithOnEvict(fn func(key string, obj Object, reason EvictReason)) LRUOption {
	return func(l *LRU) { l.onEvict = fn }
}

// NewLRU builds a cache from the given options. With no options it is
// unbounded, which is only useful in tests.
func NewLRU(opts ...LRUOption) *LRU {
	l := &LRU{
		items: make(map[string]*list.Element),
		order: list.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Get returns the cached object for key, promoting it to most-recently-used.
// A lazily-discovered expired entry counts as a miss and is evicted with
// reason EvictTTL.
func (l *LRU) Get(key string) (Object, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.items[key]
	if !ok {
		l.stats.Misses++
		return Object{}, false
	}
	entry := elem.Value.(*lruEntry)
	if l.expired(entry) {
		l.removeElement(elem, EvictTTL)
		l.stats.Misses++
		return Object{}, false
	}
	l.order.MoveToFront(elem)
	l.stats.Hits++
	return entry.obj, true
}

// Peek returns the cached object without promoting it or counting a hit/miss.
func (l *LRU) Peek(key string) (Object, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.items[key]
	if !ok {
		return Object{}, false
	}
	entry := elem.Value.(*lruEntry)
	if l.expired(entry) {
		return Object{}, false
	}
	return entry.obj, true
}

// Put inserts or updates key, then evicts from the back until both the
// count and byte limits are satisfied.
func (l *LRU) Put(key string, obj Object) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var expiresAt time.Time
	if l.ttl > 0 {
		expiresAt = time.Now().Add(l.ttl)
	}

	if elem, ok := l.items[key]; ok {
		entry := elem.Value.(*lruEntry)
		l.bytes -= int64(len(entry.obj.Data))
		entry.obj = obj
		entry.expiresAt = expiresAt
		l.bytes += int64(len(obj.Data))
		l.order.MoveToFront(elem)
	} else {
		entry := &lruEntry{key: key, obj: obj, expiresAt: expiresAt}
		elem := l.order.PushFront(entry)
		l.items[key] = elem
		l.bytes += int64(len(obj.Data))
	}

	l.evictOverLimit(EvictLRU)
}

// Remove manually evicts key, if present.
func (l *LRU) Remove(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if elem, ok := l.items[key]; ok {
		l.removeElement(elem, EvictManual)
	}
}

// Clear empties the cache, reporting EvictClear for every entry.
func (l *LRU) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.order.Len() > 0 {
		l.removeElement(l.order.Back(), EvictClear)
	}
}

// Resize changes the count/byte limits in place, evicting immediately if the
// new limits are tighter than current occupancy.
func (l *LRU) Resize(maxCount int, maxBytes int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxCount = maxCount
	l.maxBytes = maxBytes
	l.evictOverLimit(EvictSize)
}

// Stats returns a snapshot of cumulative counters and current occupancy.
func (l *LRU) Stats() LRUStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := l.stats
	snap.Count = l.order.Len()
	snap.Bytes = l.bytes
	return snap
}

func (l *LRU) expired(e *lruEntry) bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

func (l *LRU) evictOverLimit(reason EvictReason) {
	for l.order.Len() > 0 {
		overCount := l.maxCount > 0 && l.order.Len() > l.maxCount
		overBytes := l.maxBytes > 0 && l.bytes > l.maxBytes
		if !overCount && !overBytes {
			return
		}
		l.removeElement(l.order.Back(), reason)
	}
}

func (l *LRU) removeElement(elem *list.Element, reason EvictReason) {
	entry := elem.Value.(*lruEntry)
	if reason == EvictSize && l.expired(entry) {
		reason = EvictTTL
	}
	l.order.Remove(elem)
	delete(l.items, entry.key)
	l.bytes -= int64(len(entry.obj.Data))
	l.stats.Evictions++
	if l.onEvict != nil {
		l.onEvict(entry.key, entry.obj, reason)
	}
}
