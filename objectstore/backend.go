package objectstore

import (
	"context"
	"sync"
)

// Tier names a storage tier in the hot/warm/cold hierarchy.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Backend is a single-tier object store. Hot, warm, and cold tiers each
// satisfy this interface; TieredStore treats them as a sum type and never
// branches on concrete backend type outside of configuration.
type Backend interface {
	Tier() Tier
	Get(ctx context.Context, sha string) (Object, bool, error)
	Put(ctx context.Context, obj Object) error
	Delete(ctx context.Context, sha string) error
	// Size reports the number of bytes currently stored, for migration
	// candidate selection (maxHotSize).
	Size(ctx context.Context) (int64, error)
}

// MemoryBackend is an in-memory Backend, suitable as any tier in tests and
// as the warm/cold tiers in a single-process deployment.
type MemoryBackend struct {
	tier Tier

	mu      sync.RWMutex
	objects map[string]Object
	bytes   int64
}

// NewMemoryBackend returns an empty in-memory backend for the given tier.
func NewMemoryBackend(tier Tier) *MemoryBackend {
	return &MemoryBackend{tier: tier, objects: make(map[string]Object)}
}

func (b *MemoryBackend) Tier() Tier { return b.tier }

func (b *MemoryBackend) Get(_ context.Context, sha string) (Object, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[sha]
	return obj, ok, nil
}

func (b *MemoryBackend) Put(_ context.Context, obj Object) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.objects[obj.Sha]; ok {
		b.bytes -= int64(len(existing.Data))
	}
	b.objects[obj.Sha] = obj
	b.bytes += int64(len(obj.Data))
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, sha string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.objects[sha]; ok {
		b.bytes -= int64(len(existing.Data))
		delete(b.objects, sha)
	}
	return nil
}

func (b *MemoryBackend) Size(_ context.Context) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bytes, nil
}

// shaSet is a small helper used by the migration engine to track in-flight
// shas without pulling in a generic set type.
type shaSet map[string]struct{}

func (s shaSet) add(sha string)      { s[sha] = struct{}{} }
func (s shaSet) has(sha string) bool { _, ok := s[sha]; return ok }
func (s shaSet) remove(sha string)   { delete(s, sha) }
