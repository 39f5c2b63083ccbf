package objectstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"githost.dev/githost/log"
)

// ErrLockTimeout is returned by Migrate when the per-sha migration lock
// isn't acquired within the configured timeout. The migration itself is not
// cancelled: a concurrent caller already holding (or about to hold) the
// lock carries on, but this caller gives up waiting on it.
var ErrLockTimeout = errors.New("objectstore: migration lock acquire timed out")

// MigrationState is the lifecycle state of a MigrationJob.
type MigrationState int

const (
	MigrationPending MigrationState = iota
	MigrationInProgress
	MigrationCompleted
	MigrationFailed
	MigrationCancelled
	MigrationRolledBack
)

func (s MigrationState) String() string {
	switch s {
	case MigrationPending:
		return "pending"
	case MigrationInProgress:
		return "in_progress"
	case MigrationCompleted:
		return "completed"
	case MigrationFailed:
		return "failed"
	case MigrationCancelled:
		return "cancelled"
	case MigrationRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("MigrationState(%d)", int(s))
	}
}

// MigrationJob tracks one sha's progress through Migrate: which tiers it
// moved between, its current state, and when it started/finished. Completed
// jobs are retained per-sha so callers can inspect recent migration history
// for an object.
type MigrationJob struct {
	ID          string
	Sha         string
	Src, Tgt    Tier
	State       MigrationState
	Progress    float64 // 0 at start, 1 once the object lands in tgt
	StartedAt   time.Time
	CompletedAt time.Time
	Err         error
}

// maxRetainedHistory bounds how many past jobs are kept per sha.
const maxRetainedHistory = 10

// MigrationPolicy decides which objects are candidates for demotion out of
// a tier based on recency, frequency, and current tier occupancy.
type MigrationPolicy struct {
	MaxAgeInHot    time.Duration // candidate once unaccessed for this long
	MinAccessCount int64         // below this count, eligible for demotion regardless of age
	MaxHotSize     int64         // once hot exceeds this many bytes, demotion runs even for fresh objects
	LockTimeout    time.Duration // how long Migrate waits to acquire the per-sha lock before giving up
}

// lockTimeout returns the configured LockTimeout, or a safe default if unset.
func (p MigrationPolicy) lockTimeout() time.Duration {
	if p.LockTimeout <= 0 {
		return 30 * time.Second
	}
	return p.LockTimeout
}

// DefaultMigrationPolicy mirrors typical hot-tier sizing for a single-node
// deployment: demote after a day of inactivity, or sooner under size pressure.
func DefaultMigrationPolicy() MigrationPolicy {
	return MigrationPolicy{
		MaxAgeInHot:    24 * time.Hour,
		MinAccessCount: 1,
		MaxHotSize:     1 << 30, // 1 GiB
		LockTimeout:    30 * time.Second,
	}
}

// pendingWrite records an object that arrived for a sha while that sha was
// mid-migration, so the migration can replay it onto the new tier instead
// of losing the write.
type pendingWrite struct {
	obj Object
}

// MigrationEngine moves objects between tiers of a TieredStore. Each sha
// migrates under a singleflight key so concurrent callers (a migration scan
// and an inbound write) never race on the same object.
type MigrationEngine struct {
	store  *TieredStore
	policy MigrationPolicy
	logger log.Logger

	group singleflight.Group

	mu      sync.Mutex
	pending map[string]pendingWrite
	jobs    map[string]*MigrationJob
	history map[string][]MigrationJob
}

// NewMigrationEngine builds an engine over store using policy for candidate
// selection.
func NewMigrationEngine(store *TieredStore, policy MigrationPolicy, logger log.Logger) *MigrationEngine {
	if logger == nil {
		logger = log.Noop()
	}
	return &MigrationEngine{
		store:   store,
		policy:  policy,
		logger:  logger,
		pending: make(map[string]pendingWrite),
		jobs:    make(map[string]*MigrationJob),
		history: make(map[string][]MigrationJob),
	}
}

// Job returns the current or most recently completed job tracked for sha.
func (m *MigrationEngine) Job(sha string) (MigrationJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[sha]
	if !ok {
		return MigrationJob{}, false
	}
	return *job, true
}

// History returns the retained past jobs for sha, oldest first.
func (m *MigrationEngine) History(sha string) []MigrationJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MigrationJob(nil), m.history[sha]...)
}

func (m *MigrationEngine) recordHistory(job MigrationJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hist := append(m.history[job.Sha], job)
	if len(hist) > maxRetainedHistory {
		hist = hist[len(hist)-maxRetainedHistory:]
	}
	m.history[job.Sha] = hist
}

// Candidates scans the access tracker and returns shas currently in srcTier
// eligible for demotion under the configured policy.
func (m *MigrationEngine) Candidates(ctx context.Context, srcTier Tier) ([]string, error) {
	backend, ok := m.store.tiers[srcTier]
	if !ok {
		return nil, fmt.Errorf("objectstore: no backend for tier %q", srcTier)
	}
	size, err := backend.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstore: backend size: %w", err)
	}
	overSize := m.policy.MaxHotSize > 0 && size > m.policy.MaxHotSize

	now := time.Now()
	var out []string
	for sha, info := range m.store.access.snapshot() {
		tier, ok, err := m.store.index.Lookup(ctx, sha)
		if err != nil || !ok || tier != srcTier {
			continue
		}
		stale := now.Sub(info.lastAccess) >= m.policy.MaxAgeInHot
		coldEnough := info.count < m.policy.MinAccessCount
		if stale || coldEnough || overSize {
			out = append(out, sha)
		}
	}
	return out, nil
}

// Migrate moves a single sha from src to tgt, following a 7-step protocol:
//  1. acquire the per-sha lock
//  2. read the object from src
//  3. write it to tgt
//  4. verify the written bytes hash back to sha
//  5. update the location index to point at tgt
//  6. replay any pending write that arrived mid-migration
//  7. delete the object from src
//
// A failure in step 4 or 5 rolls back by deleting the copy from tgt, and the
// job is recorded as rolled_back rather than failed; a failure in steps 1-3
// leaves src untouched and the job is recorded failed. Failures in steps 6
// and 7 are logged and do not fail the migration.
//
// Acquiring the per-sha lock (step 1) is bounded by the policy's
// LockTimeout: if it isn't acquired in time, Migrate returns ErrLockTimeout
// without affecting whatever caller does end up holding the lock.
func (m *MigrationEngine) Migrate(ctx context.Context, sha string, src, tgt Tier) error {
	job := &MigrationJob{
		ID:        uuid.NewString(),
		Sha:       sha,
		Src:       src,
		Tgt:       tgt,
		State:     MigrationPending,
		StartedAt: time.Now(),
	}
	m.mu.Lock()
	m.jobs[sha] = job
	m.mu.Unlock()

	lockTimer := time.NewTimer(m.policy.lockTimeout())
	defer lockTimer.Stop()
	resultCh := m.group.DoChan(sha, func() (any, error) {
		// This call holds the lock: its own migration is not bounded by LockTimeout.
		lockTimer.Stop()
		m.mu.Lock()
		job.State = MigrationInProgress
		m.mu.Unlock()
		return nil, m.migrateLocked(ctx, sha, src, tgt)
	})

	select {
	case res := <-resultCh:
		job.CompletedAt = time.Now()
		job.Err = res.Err
		switch {
		case res.Err == nil:
			job.State = MigrationCompleted
			job.Progress = 1
		case errors.Is(res.Err, errMigrateRolledBack):
			job.State = MigrationRolledBack
		default:
			job.State = MigrationFailed
		}
		m.recordHistory(*job)
		return res.Err
	case <-lockTimer.C:
		job.State = MigrationFailed
		job.Err = ErrLockTimeout
		job.CompletedAt = time.Now()
		m.recordHistory(*job)
		return ErrLockTimeout
	case <-ctx.Done():
		job.State = MigrationCancelled
		job.Err = ctx.Err()
		job.CompletedAt = time.Now()
		m.recordHistory(*job)
		return ctx.Err()
	}
}

// errMigrateRolledBack wraps a migrateLocked failure that occurred after the
// target write (steps 4 and 5), distinguishing it from an earlier failure
// that left src untouched.
var errMigrateRolledBack = errors.New("objectstore: migration rolled back")

func (m *MigrationEngine) migrateLocked(ctx context.Context, sha string, src, tgt Tier) error {
	srcBackend, ok := m.store.tiers[src]
	if !ok {
		return fmt.Errorf("objectstore: no backend for source tier %q", src)
	}
	tgtBackend, ok := m.store.tiers[tgt]
	if !ok {
		return fmt.Errorf("objectstore: no backend for target tier %q", tgt)
	}

	// step 2: read from source
	obj, found, err := srcBackend.Get(ctx, sha)
	if err != nil {
		return fmt.Errorf("objectstore: migrate read: %w", err)
	}
	if !found {
		return fmt.Errorf("objectstore: migrate: %s not present in %s", sha, src)
	}

	// step 3: write to target
	if err := tgtBackend.Put(ctx, obj); err != nil {
		return fmt.Errorf("objectstore: migrate write: %w", err)
	}

	// step 4: verify
	wantSha, err := ComputeSha(obj.Type, obj.Data)
	if err != nil || wantSha != sha {
		_ = tgtBackend.Delete(ctx, sha) // rollback the half-written copy
		if err != nil {
			return fmt.Errorf("%w: objectstore: migrate verify: %v", errMigrateRolledBack, err)
		}
		return fmt.Errorf("%w: objectstore: migrate verify: sha mismatch for %s", errMigrateRolledBack, sha)
	}

	// step 5: repoint the location index
	if err := m.store.index.Set(ctx, sha, tgt); err != nil {
		_ = tgtBackend.Delete(ctx, sha)
		return fmt.Errorf("%w: objectstore: migrate index update: %v", errMigrateRolledBack, err)
	}

	// step 6: replay a pending write that raced the migration
	m.mu.Lock()
	pw, hasPending := m.pending[sha]
	delete(m.pending, sha)
	m.mu.Unlock()
	if hasPending {
		if err := tgtBackend.Put(ctx, pw.obj); err != nil {
			m.logger.Error("migration: pending write replay failed", "sha", sha, "error", err)
		}
	}

	// step 7: remove from source
	if err := srcBackend.Delete(ctx, sha); err != nil {
		m.logger.Error("migration: source cleanup failed", "sha", sha, "tier", src, "error", err)
	}

	if tgt == TierHot {
		m.store.cache.Put(sha, obj)
	} else {
		m.store.cache.Remove(sha)
	}

	m.logger.Debug("migration: moved object", "sha", sha, "from", src, "to", tgt)
	return nil
}

// NotePendingWrite records a write that arrived for sha while it may be
// mid-migration, so Migrate can replay it after repointing the index.
func (m *MigrationEngine) NotePendingWrite(sha string, obj Object) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[sha] = pendingWrite{obj: obj}
}

// MigrateBatch runs Migrate over shas with up to concurrency migrations in
// flight at once, collecting every error rather than stopping at the first.
func (m *MigrationEngine) MigrateBatch(ctx context.Context, shas []string, src, tgt Tier, concurrency int) []error {
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	errs := make([]error, len(shas))
	var wg sync.WaitGroup
	for i, sha := range shas {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sha string) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = m.Migrate(ctx, sha, src, tgt)
		}(i, sha)
	}
	wg.Wait()

	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

// DecayAccessCounts halves every tracked access count. Intended to run on a
// periodic timer outside the engine (e.g. from cmd/githostd's main loop).
func (m *MigrationEngine) DecayAccessCounts() {
	m.store.access.decay()
}
