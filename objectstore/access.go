package objectstore

import (
	"sync"
	"time"
)

// accessInfo tracks how recently and how often a sha has been touched, the
// input to migration candidate selection.
type accessInfo struct {
	lastAccess time.Time
	count      int64
}

// accessTracker records per-sha access recency/frequency and decays counts
// over time so that objects hot a week ago don't stay "hot" forever.
type accessTracker struct {
	mu    sync.Mutex
	bySha map[string]*accessInfo
}

func newAccessTracker() *accessTracker {
	return &accessTracker{bySha: make(map[string]*accessInfo)}
}

func (t *accessTracker) record(sha string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.bySha[sha]
	if !ok {
		info = &accessInfo{}
		t.bySha[sha] = info
	}
	info.lastAccess = time.Now()
	info.count++
}

func (t *accessTracker) get(sha string) (accessInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.bySha[sha]
	if !ok {
		return accessInfo{}, false
	}
	return *info, true
}

func (t *accessTracker) forget(sha string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.bySha, sha)
}

// decay halves every tracked count, a cheap exponential-moving-average
// substitute run periodically by the migration engine so that a burst of
// past access doesn't keep an object pinned as "hot" indefinitely.
func (t *accessTracker) decay() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, info := range t.bySha {
		info.count /= 2
	}
}

// snapshot returns all tracked shas paired with their current access info,
// for candidate selection scans.
func (t *accessTracker) snapshot() map[string]accessInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]accessInfo, len(t.bySha))
	for sha, info := range t.bySha {
		out[sha] = *info
	}
	return out
}
