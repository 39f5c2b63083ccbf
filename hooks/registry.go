// Package hooks implements the server-side hook pipeline: pre-receive,
// update, and post-receive/post-update stages, plus webhook dispatch with
// HMAC signing and retry.
package hooks

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Point names a stage in the hook pipeline.
type Point string

const (
	PointPreReceive  Point = "pre-receive"
	PointUpdate      Point = "update"
	PointPostReceive Point = "post-receive"
	PointPostUpdate  Point = "post-update"
)

// RefUpdate is one ref mutation passed to hooks, in the same shape the
// receive-pack pipeline already validated and is about to apply.
type RefUpdate struct {
	RefName string
	OldSha  string
	NewSha  string
}

// HookContext carries the repository and actor identity a hook run needs,
// independent of which point in the pipeline is executing.
type HookContext struct {
	Point      Point
	Repository string
	Actor      string
	Updates    []RefUpdate
}

// Runner is the action a single hook performs: inspect ctx (and, for the
// update point, a single RefUpdate) and return an error to reject it.
type Runner interface {
	Run(ctx context.Context, hc HookContext, update *RefUpdate) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, hc HookContext, update *RefUpdate) error

func (f RunnerFunc) Run(ctx context.Context, hc HookContext, update *RefUpdate) error {
	return f(ctx, hc, update)
}

// Hook is one registered hook: where it runs, in what order relative to its
// siblings, and what it does.
type Hook struct {
	ID       string
	Point    Point
	Priority int // lower runs first; default 100
	Timeout  time.Duration // default 30s
	Enabled  bool
	Kind     string // "webhook", "script", "builtin" - descriptive only
	Runner   Runner
}

func (h Hook) effectivePriority() int {
	if h.Priority == 0 {
		return 100
	}
	return h.Priority
}

func (h Hook) effectiveTimeout() time.Duration {
	if h.Timeout == 0 {
		return 30 * time.Second
	}
	return h.Timeout
}

// Registry is the process-lifetime singleton holding every configured hook.
// It is intended to be constructed once at startup and read concurrently
// thereafter; Register is safe to call after startup too (e.g. a config
// reload) but is not optimised for high-frequency mutation.
type Registry struct {
	mu    sync.RWMutex
	hooks []Hook
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds hook to the registry.
func (r *Registry) Register(hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Hooks returns every enabled hook registered at point, ordered by
// ascending priority and, within equal priority, registration order.
func (r *Registry) Hooks(point Point) []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Hook
	for _, h := range r.hooks {
		if h.Point == point && h.Enabled {
			h.Priority = h.effectivePriority()
			h.Timeout = h.effectiveTimeout()
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].effectivePriority() < out[j].effectivePriority()
	})
	return out
}
