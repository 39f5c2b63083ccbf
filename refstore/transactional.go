package refstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store. Writes are serialised behind a single
// mutex: the ref namespace for one repository is small enough, and update
// frequency low enough, that a single-writer discipline is simpler and
// safer than fine-grained per-ref locking.
type MemoryStore struct {
	mu   sync.Mutex
	refs map[string]Ref

	packedMu sync.RWMutex
	packed   map[string]Ref

	callbacks []UpdateCallback
}

// NewMemoryStore returns an empty in-memory ref store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		refs:   make(map[string]Ref),
		packed: make(map[string]Ref),
	}
}

func (s *MemoryStore) Get(_ context.Context, name string) (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.refs[name]; ok {
		return ref, nil
	}
	s.packedMu.RLock()
	defer s.packedMu.RUnlock()
	if ref, ok := s.packed[name]; ok {
		return ref, nil
	}
	return Ref{}, ErrNotFound
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]Ref, error) {
	s.mu.Lock()
	seen := make(map[string]Ref, len(s.refs))
	for name, ref := range s.refs {
		if strings.HasPrefix(name, prefix) {
			seen[name] = ref
		}
	}
	s.mu.Unlock()

	s.packedMu.RLock()
	for name, ref := range s.packed {
		if _, ok := seen[name]; !ok && strings.HasPrefix(name, prefix) {
			seen[name] = ref
		}
	}
	s.packedMu.RUnlock()

	out := make([]Ref, 0, len(seen))
	for _, ref := range seen {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CasUpdate implements the compare-and-swap contract described on Store.
func (s *MemoryStore) CasUpdate(ctx context.Context, name string, expectedOld, newTarget string, kind Kind) error {
	s.mu.Lock()

	current, exists := s.refs[name]
	var currentTarget string
	if exists {
		currentTarget = current.Target
	} else {
		s.packedMu.RLock()
		if packedRef, ok := s.packed[name]; ok {
			exists = true
			currentTarget = packedRef.Target
		}
		s.packedMu.RUnlock()
	}

	switch {
	case expectedOld == "" && exists:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s already exists", ErrCasMismatch, name)
	case expectedOld != "" && !exists:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s does not exist", ErrCasMismatch, name)
	case expectedOld != "" && exists && currentTarget != expectedOld:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s expected %s, found %s", ErrCasMismatch, name, expectedOld, currentTarget)
	}

	deleted := newTarget == ""
	if deleted {
		delete(s.refs, name)
		s.packedMu.Lock()
		delete(s.packed, name)
		s.packedMu.Unlock()
	} else {
		s.refs[name] = Ref{Name: name, Target: newTarget, Kind: kind}
	}
	callbacks := append([]UpdateCallback(nil), s.callbacks...)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(ctx, name, currentTarget, newTarget, deleted)
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	current, exists := s.refs[name]
	if !exists {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.refs, name)
	callbacks := append([]UpdateCallback(nil), s.callbacks...)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(ctx, name, current.Target, "", true)
	}
	return nil
}

// Resolve follows symbolic indirections starting at name until a direct ref
// is reached, failing if it exceeds maxDepth hops or encounters a cycle.
func (s *MemoryStore) Resolve(ctx context.Context, name string, maxDepth int) (Ref, error) {
	if maxDepth <= 0 {
		maxDepth = MaxSymbolicDepth
	}
	seen := make(map[string]bool)
	current := name
	for depth := 0; depth <= maxDepth; depth++ {
		if seen[current] {
			return Ref{}, fmt.Errorf("%w: cycle at %s", ErrCircularRef, current)
		}
		seen[current] = true

		ref, err := s.Get(ctx, current)
		if err != nil {
			return Ref{}, err
		}
		if ref.Kind == KindDirect {
			return ref, nil
		}
		current = ref.Target
	}
	return Ref{}, fmt.Errorf("%w: %s", ErrMaxDepthExceeded, name)
}

func (s *MemoryStore) ListPacked(_ context.Context) ([]Ref, error) {
	s.packedMu.RLock()
	defer s.packedMu.RUnlock()
	out := make([]Ref, 0, len(s.packed))
	for _, ref := range s.packed {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) WritePacked(_ context.Context, refs []Ref) error {
	s.packedMu.Lock()
	defer s.packedMu.Unlock()
	next := make(map[string]Ref, len(refs))
	for _, ref := range refs {
		next[ref.Name] = ref
	}
	s.packed = next
	return nil
}

func (s *MemoryStore) OnUpdate(cb UpdateCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}
