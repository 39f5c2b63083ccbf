package objectstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	var evicted []string
	cache := NewLRU(WithMaxCount(2), WithOnEvict(func(key string, _ Object, reason EvictReason) {
		evicted = append(evicted, key)
		require.Equal(t, EvictLRU, reason)
	}))

	cache.Put("a", Object{Sha: "a"})
	cache.Put("b", Object{Sha: "b"})
	cache.Get("a") // promote a, b is now least recently used
	cache.Put("c", Object{Sha: "c"})

	require.Equal(t, []string{"b"}, evicted)
	_, ok := cache.Get("b")
	require.False(t, ok)
	_, ok = cache.Get("a")
	require.True(t, ok)
}

func TestLRU_MaxBytes(t *testing.T) {
	t.Parallel()

	cache := NewLRU(WithMaxBytes(10))
	cache.Put("a", Object{Sha: "a", Data: make([]byte, 6)})
	cache.Put("b", Object{Sha: "b", Data: make([]byte, 6)})

	stats := cache.Stats()
	require.LessOrEqual(t, stats.Bytes, int64(10))
	_, ok := cache.Get("a")
	require.False(t, ok)
}

func TestLRU_TTLExpiry(t *testing.T) {
	t.Parallel()

	cache := NewLRU(WithTTL(time.Millisecond))
	cache.Put("a", Object{Sha: "a"})
	time.Sleep(5 * time.Millisecond)

	_, ok := cache.Get("a")
	require.False(t, ok)
	require.Equal(t, int64(1), cache.Stats().Misses)
}

func TestLRU_StatsHitRate(t *testing.T) {
	t.Parallel()

	cache := NewLRU()
	cache.Put("a", Object{Sha: "a"})
	cache.Get("a")
	cache.Get("missing")

	stats := cache.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, 0.5, stats.HitRate())
}

func TestLRU_Peek_DoesNotPromoteOrCount(t *testing.T) {
	t.Parallel()

	cache := NewLRU()
	cache.Put("a", Object{Sha: "a"})
	_, ok := cache.Peek("a")
	require.True(t, ok)
	require.Equal(t, int64(0), cache.Stats().Hits)
}

func TestLRU_Resize_EvictsImmediately(t *testing.T) {
	t.Parallel()

	cache := NewLRU()
	cache.Put("a", Object{Sha: "a"})
	cache.Put("b", Object{Sha: "b"})
	cache.Resize(1, 0)

	require.Equal(t, 1, cache.Stats().Count)
}

func TestLRU_Clear(t *testing.T) {
	t.Parallel()

	var reasons []EvictReason
	cache := NewLRU(WithOnEvict(func(_ string, _ Object, reason EvictReason) {
		reasons = append(reasons, reason)
	}))
	cache.Put("a", Object{Sha: "a"})
	cache.Put("b", Object{Sha: "b"})
	cache.Clear()

	require.Equal(t, 0, cache.Stats().Count)
	require.Equal(t, []EvictReason{EvictClear, EvictClear}, reasons)
}

func TestLRU_Remove(t *testing.T) {
	t.Parallel()

	cache := NewLRU()
	cache.Put("a", Object{Sha: "a"})
	cache.Remove("a")
	_, ok := cache.Peek("a")
	require.False(t, ok)
}
