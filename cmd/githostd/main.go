// Command githostd runs the Git Smart HTTP server: it wires configuration,
// logging, the tiered object store, the ref store, branch protection, the
// hook pipeline, the CDC pipeline, and the transport layer together, then
// serves until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"githost.dev/githost/cdc"
	"githost.dev/githost/config"
	githostlog "githost.dev/githost/log"
	"githost.dev/githost/metrics"
	"githost.dev/githost/objectstore"
	"githost.dev/githost/policy"
	"githost.dev/githost/refstore"
	"githost.dev/githost/retry"
	"githost.dev/githost/transport"

	"githost.dev/githost/hooks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := githostlog.NewSlog(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}

	reg := metrics.New()

	repo, migrationEngine, migrationTarget, err := wireRepository(cfg, logger)
	if err != nil {
		logger.Error("repository wiring failed", "error", err)
		os.Exit(1)
	}

	migrationCtx, stopMigration := context.WithCancel(context.Background())
	defer stopMigration()
	if migrationEngine != nil {
		go runMigrationLoop(migrationCtx, migrationEngine, migrationTarget, logger)
	}

	srv := transport.NewServer(
		transport.NewMemoryResolver(repo),
		transport.AllowAllOracle{},
		transport.AllowAllOracle{},
		logger,
	)

	mux := http.NewServeMux()
	mux.Handle(cfg.HealthPath, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	mux.Handle(cfg.MetricsPath, promhttp.Handler())
	mux.Handle("/", instrumentRequests(reg, repo.ID, srv))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if repo.CDC != nil {
		repo.CDC.Close()
	}
}

// wireRepository builds the single RepositoryContext this process serves.
// A production deployment would back RepositoryResolver with a registry
// keyed by repository id, each lazily wiring its own RepositoryContext the
// same way; this binary serves exactly one, named by its backend DSNs.
func wireRepository(cfg *config.Config, logger githostlog.Logger) (*transport.RepositoryContext, *objectstore.MigrationEngine, objectstore.Tier, error) {
	hot, err := newBackend(cfg.HotBackendDSN, objectstore.TierHot)
	if err != nil {
		return nil, nil, "", fmt.Errorf("hot backend: %w", err)
	}
	warm, err := newOptionalBackend(cfg.WarmBackendDSN, objectstore.TierWarm)
	if err != nil {
		return nil, nil, "", fmt.Errorf("warm backend: %w", err)
	}
	cold, err := newOptionalBackend(cfg.ColdBackendDSN, objectstore.TierCold)
	if err != nil {
		return nil, nil, "", fmt.Errorf("cold backend: %w", err)
	}

	cache := objectstore.NewLRU(objectstore.WithMaxCount(cfg.LRUMaxCount), objectstore.WithMaxBytes(cfg.LRUMaxBytes))
	store := objectstore.NewTieredStore(cache, hot, warm, cold, objectstore.NewMemoryLocationIndex(), objectstore.WithLogger(logger))

	var migrationEngine *objectstore.MigrationEngine
	migrationTarget := objectstore.TierWarm
	if warm != nil {
		migrationPolicy := objectstore.MigrationPolicy{
			MaxAgeInHot:    cfg.MigrationMaxAgeInHot,
			MinAccessCount: cfg.MigrationMinAccessCount,
			MaxHotSize:     cfg.MigrationMaxHotSize,
		}
		migrationEngine = objectstore.NewMigrationEngine(store, migrationPolicy, logger)
	}

	rules, err := policy.LoadRulesFile(cfg.BranchProtectionRulesPath)
	if err != nil {
		return nil, nil, "", fmt.Errorf("branch protection rules: %w", err)
	}
	evaluator := policy.NewEvaluator(rules)

	registry := hooks.NewRegistry()
	webhookConfigs, err := hooks.LoadWebhookConfigs(cfg.HookRegistryConfigPath)
	if err != nil {
		return nil, nil, "", fmt.Errorf("hook registry config: %w", err)
	}
	if err := hooks.RegisterWebhooks(registry, webhookConfigs); err != nil {
		return nil, nil, "", fmt.Errorf("registering webhooks: %w", err)
	}
	for i := range webhookConfigs {
		applyRetryPolicy(registry, webhookConfigs[i].ID, cfg)
	}
	executor := hooks.NewExecutor(registry, logger)

	deadLetter := cdc.NewMemoryDeadLetterHandler()
	sink := cdc.NewFileSink(os.Stdout)
	pipeline := cdc.NewPipeline(cdc.PipelineConfig{
		MaxBufferSize: cfg.CDCBatchSize * 4,
		BatchSize:     cfg.CDCBatchSize,
		BatchInterval: cfg.CDCBatchInterval,
		MaxRetries:    cfg.CDCMaxRetries,
	}, sink, deadLetter, logger)

	repo := &transport.RepositoryContext{
		ID:        "default",
		Objects:   store,
		Refs:      refstore.NewMemoryStore(),
		Evaluator: evaluator,
		Hooks:     executor,
		CDC:       pipeline,
		Sequence:  &cdc.SequenceGenerator{},
	}
	return repo, migrationEngine, migrationTarget, nil
}

// runMigrationLoop periodically moves hot-tier objects matching the
// configured migration policy into the warm tier, until ctx is cancelled.
func runMigrationLoop(ctx context.Context, engine *objectstore.MigrationEngine, target objectstore.Tier, logger githostlog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			candidates, err := engine.Candidates(ctx, objectstore.TierHot)
			if err != nil {
				logger.Error("migration: candidate scan failed", "error", err)
				continue
			}
			if len(candidates) == 0 {
				continue
			}
			for _, migrateErr := range engine.MigrateBatch(ctx, candidates, objectstore.TierHot, target, 4) {
				logger.Warn("migration: batch entry failed", "error", migrateErr)
			}
			engine.DecayAccessCounts()
		}
	}
}

// applyRetryPolicy overrides the default webhook retrier's attempt/delay
// bounds with the process-wide configured policy, since hooks.NewWebhook
// otherwise uses its own hardcoded defaults.
func applyRetryPolicy(registry *hooks.Registry, hookID string, cfg *config.Config) {
	for _, point := range []hooks.Point{hooks.PointPreReceive, hooks.PointUpdate, hooks.PointPostReceive, hooks.PointPostUpdate} {
		for _, h := range registry.Hooks(point) {
			if h.ID != hookID {
				continue
			}
			wh, ok := h.Runner.(*hooks.Webhook)
			if !ok {
				continue
			}
			if retrier, ok := wh.Retrier.(*retry.ExponentialBackoffRetrier); ok {
				retrier.MaxAttemptsValue = cfg.WebhookRetryMaxAttempts
				retrier.InitialDelay = cfg.WebhookRetryBaseDelay
				retrier.MaxDelay = cfg.WebhookRetryMaxDelay
			}
		}
	}
}

// instrumentRequests wraps next with request-count, response-status, and
// latency observations keyed by the Git service named in the request path.
func instrumentRequests(reg *metrics.Metrics, repoID string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		svc := serviceNameFromPath(r.URL.Path)
		reg.RequestsTotal.WithLabelValues(repoID, svc).Inc()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		reg.RequestLatency.WithLabelValues(repoID, svc).Observe(time.Since(start).Seconds())
		reg.ResponsesTotal.WithLabelValues(repoID, svc, fmt.Sprintf("%d", sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func serviceNameFromPath(path string) string {
	switch {
	case strings.HasSuffix(path, "/info/refs"):
		return "info-refs"
	case strings.HasSuffix(path, "/git-upload-pack"):
		return "git-upload-pack"
	case strings.HasSuffix(path, "/git-receive-pack"):
		return "git-receive-pack"
	default:
		return "unknown"
	}
}

func newBackend(dsn string, tier objectstore.Tier) (objectstore.Backend, error) {
	b, err := newOptionalBackend(dsn, tier)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("backend dsn must not be empty for the hot tier")
	}
	return b, nil
}

// newOptionalBackend returns nil, nil for an empty DSN (tier disabled).
// Only the in-memory backend is implemented today; other schemes are
// rejected rather than silently falling back.
func newOptionalBackend(dsn string, tier objectstore.Tier) (objectstore.Backend, error) {
	if dsn == "" {
		return nil, nil
	}
	if dsn == "memory://" {
		return objectstore.NewMemoryBackend(tier), nil
	}
	return nil, fmt.Errorf("unsupported backend dsn %q", dsn)
}
