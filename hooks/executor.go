package hooks

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"githost.dev/githost/log"
)

// Executor runs the registered hooks at each pipeline point against a
// ref-update batch.
type Executor struct {
	registry *Registry
	logger   log.Logger
}

// NewExecutor builds an Executor over registry.
func NewExecutor(registry *Registry, logger log.Logger) *Executor {
	if logger == nil {
		logger = log.Noop()
	}
	return &Executor{registry: registry, logger: logger}
}

// RunPreReceive runs every pre-receive hook in priority order against the
// whole batch at once, aborting the batch on the first failure: pre-receive
// is an all-or-nothing gate.
func (e *Executor) RunPreReceive(ctx context.Context, hc HookContext) error {
	hc.Point = PointPreReceive
	for _, hook := range e.registry.Hooks(PointPreReceive) {
		if err := e.runOne(ctx, hook, hc, nil); err != nil {
			return fmt.Errorf("pre-receive hook %q rejected push: %w", hook.ID, err)
		}
	}
	return nil
}

// RunUpdate runs every update hook in priority order, once per ref in hc,
// aborting only that ref's command on failure. Returns the subset of refs
// that passed.
func (e *Executor) RunUpdate(ctx context.Context, hc HookContext) (accepted []RefUpdate, rejected map[string]error) {
	hc.Point = PointUpdate
	rejected = make(map[string]error)
	hooks := e.registry.Hooks(PointUpdate)

	for _, update := range hc.Updates {
		update := update
		var failed error
		for _, hook := range hooks {
			if err := e.runOne(ctx, hook, hc, &update); err != nil {
				failed = fmt.Errorf("update hook %q rejected %s: %w", hook.ID, update.RefName, err)
				break
			}
		}
		if failed != nil {
			rejected[update.RefName] = failed
			continue
		}
		accepted = append(accepted, update)
	}
	return accepted, rejected
}

// RunPostReceive runs every post-receive hook concurrently; failures are
// logged but never block the response, since the refs have already been
// applied by the time this stage runs.
func (e *Executor) RunPostReceive(ctx context.Context, hc HookContext) {
	e.runParallel(ctx, PointPostReceive, hc, nil)
}

// RunPostUpdate runs every post-update hook concurrently, once per ref.
func (e *Executor) RunPostUpdate(ctx context.Context, hc HookContext) {
	for _, update := range hc.Updates {
		update := update
		e.runParallel(ctx, PointPostUpdate, hc, &update)
	}
}

func (e *Executor) runParallel(ctx context.Context, point Point, hc HookContext, update *RefUpdate) {
	hc.Point = point
	hooks := e.registry.Hooks(point)
	if len(hooks) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, hook := range hooks {
		hook := hook
		g.Go(func() error {
			if err := e.runOne(gctx, hook, hc, update); err != nil {
				e.logger.Warn("hook failed", "point", string(point), "hook", hook.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait() // runOne never returns a non-nil error to the group; this never fails
}

func (e *Executor) runOne(ctx context.Context, hook Hook, hc HookContext, update *RefUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, hook.effectiveTimeout())
	defer cancel()
	return hook.Runner.Run(ctx, hc, update)
}
