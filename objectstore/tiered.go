package objectstore

import (
	"context"
	"fmt"
	"sync"

	"githost.dev/githost/log"
	"githost.dev/githost/protocol/object"
)

// LocationIndex tracks which tier currently holds each sha, so a Get never
// has to probe hot/warm/cold in sequence once an object has been located
// once.
type LocationIndex interface {
	Lookup(ctx context.Context, sha string) (Tier, bool, error)
	Set(ctx context.Context, sha string, tier Tier) error
	Delete(ctx context.Context, sha string) error
}

// MemoryLocationIndex is an in-memory LocationIndex.
type MemoryLocationIndex struct {
	mu   sync.RWMutex
	locs map[string]Tier
}

// NewMemoryLocationIndex returns an empty in-memory index.
func NewMemoryLocationIndex() *MemoryLocationIndex {
	return &MemoryLocationIndex{locs: make(map[string]Tier)}
}

func (i *MemoryLocationIndex) Lookup(_ context.Context, sha string) (Tier, bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	t, ok := i.locs[sha]
	return t, ok, nil
}

func (i *MemoryLocationIndex) Set(_ context.Context, sha string, tier Tier) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.locs[sha] = tier
	return nil
}

func (i *MemoryLocationIndex) Delete(_ context.Context, sha string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.locs, sha)
	return nil
}

// TieredStore is the Store implementation wiring an LRU cache in front of
// hot/warm/cold Backends. New objects always land in the hot tier; the
// migration engine moves them down as they cool.
type TieredStore struct {
	cache   *LRU
	access  *accessTracker
	index   LocationIndex
	tiers   map[Tier]Backend
	logger  log.Logger
}

// TieredStoreOption configures a TieredStore at construction time.
type TieredStoreOption func(*TieredStore)

func WithLogger(logger log.Logger) TieredStoreOption {
	return func(s *TieredStore) { s.logger = logger }
}

// NewTieredStore wires the given backends under one Store. hot is required;
// warm and cold may be nil; Put always writes to hot, and a migration whose
// target tier is not wired fails with an error.
func NewTieredStore(cache *LRU, hot, warm, cold Backend, index LocationIndex, opts ...TieredStoreOption) *TieredStore {
	s := &TieredStore{
		cache:  cache,
		access: newAccessTracker(),
		index:  index,
		tiers:  map[Tier]Backend{},
		logger: log.Noop(),
	}
	if hot != nil {
		s.tiers[TierHot] = hot
	}
	if warm != nil {
		s.tiers[TierWarm] = warm
	}
	if cold != nil {
		s.tiers[TierCold] = cold
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TieredStore) Has(ctx context.Context, sha string) (bool, error) {
	if _, ok := s.cache.Peek(sha); ok {
		return true, nil
	}
	if tier, ok, err := s.index.Lookup(ctx, sha); err == nil && ok {
		if backend, ok := s.tiers[tier]; ok {
			_, found, err := backend.Get(ctx, sha)
			return found, err
		}
	}
	return false, nil
}

func (s *TieredStore) Get(ctx context.Context, sha string) (Object, error) {
	s.access.record(sha)

	if obj, ok := s.cache.Get(sha); ok {
		return obj, nil
	}

	tier, ok, err := s.index.Lookup(ctx, sha)
	if err != nil {
		return Object{}, fmt.Errorf("objectstore: location lookup: %w", err)
	}
	if !ok {
		return Object{}, ErrNotFound
	}
	backend, ok := s.tiers[tier]
	if !ok {
		return Object{}, fmt.Errorf("objectstore: no backend wired for tier %q", tier)
	}
	obj, found, err := backend.Get(ctx, sha)
	if err != nil {
		return Object{}, fmt.Errorf("objectstore: backend get: %w", err)
	}
	if !found {
		return Object{}, ErrNotFound
	}
	if tier == TierHot {
		s.cache.Put(sha, obj)
	}
	return obj, nil
}

func (s *TieredStore) Put(ctx context.Context, typ object.Type, data []byte) (string, error) {
	sha, err := ComputeSha(typ, data)
	if err != nil {
		return "", err
	}
	obj := Object{Sha: sha, Type: typ, Data: data}

	hot, ok := s.tiers[TierHot]
	if !ok {
		return "", fmt.Errorf("objectstore: no hot backend wired")
	}
	if existing, found, _ := hot.Get(ctx, sha); found && existing.Type != typ {
		return "", ErrTypeMismatch
	}
	if err := hot.Put(ctx, obj); err != nil {
		return "", fmt.Errorf("objectstore: hot put: %w", err)
	}
	if err := s.index.Set(ctx, sha, TierHot); err != nil {
		return "", fmt.Errorf("objectstore: index set: %w", err)
	}
	s.cache.Put(sha, obj)
	s.access.record(sha)
	return sha, nil
}

// Tier reports which backend currently holds sha, for diagnostics and
// migration bookkeeping.
func (s *TieredStore) Tier(ctx context.Context, sha string) (Tier, bool, error) {
	return s.index.Lookup(ctx, sha)
}
