// Package config parses server configuration from a flag.FlagSet with
// environment-variable fallback, producing an immutable Config consumed at
// wiring time.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full set of knobs the server binary needs at startup.
type Config struct {
	ListenAddr string
	LogLevel   string

	HotBackendDSN  string
	WarmBackendDSN string
	ColdBackendDSN string

	LRUMaxCount int
	LRUMaxBytes int64

	MigrationMaxAgeInHot   time.Duration
	MigrationMinAccessCount int64
	MigrationMaxHotSize    int64

	BranchProtectionRulesPath string
	HookRegistryConfigPath    string

	CDCBatchSize     int
	CDCBatchInterval time.Duration
	CDCMaxRetries    int

	WebhookRetryMaxAttempts int
	WebhookRetryBaseDelay   time.Duration
	WebhookRetryMaxDelay    time.Duration

	MetricsPath string
	HealthPath  string
}

// Load parses configuration from os.Args.
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses configuration from an explicit argument list, falling
// back to environment variables and then hardcoded defaults for any flag
// not passed.
func LoadArgs(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("githostd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ListenAddr, "listen-addr", envOrDefault("LISTEN_ADDR", ":8443"), "HTTP listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "log level: debug,info,warn,error")

	fs.StringVar(&cfg.HotBackendDSN, "hot-backend", envOrDefault("HOT_BACKEND_DSN", "memory://"), "hot-tier object backend DSN")
	fs.StringVar(&cfg.WarmBackendDSN, "warm-backend", envOrDefault("WARM_BACKEND_DSN", ""), "warm-tier object backend DSN, empty disables the tier")
	fs.StringVar(&cfg.ColdBackendDSN, "cold-backend", envOrDefault("COLD_BACKEND_DSN", ""), "cold-tier object backend DSN, empty disables the tier")

	fs.IntVar(&cfg.LRUMaxCount, "lru-max-count", envOrDefaultInt("LRU_MAX_COUNT", 10_000), "max number of objects held in the hot-tier LRU cache")
	lruMaxBytesStr := fs.String("lru-max-bytes", envOrDefault("LRU_MAX_BYTES", "0"), "max bytes held in the hot-tier LRU cache, 0 means unbounded by size")

	migrationMaxAgeStr := fs.String("migration-max-age-in-hot", envOrDefault("MIGRATION_MAX_AGE_IN_HOT", "168h"), "age after which an unreferenced hot object becomes a migration candidate")
	fs.Int64Var(&cfg.MigrationMinAccessCount, "migration-min-access-count", envOrDefaultInt64("MIGRATION_MIN_ACCESS_COUNT", 1), "access count below which a hot object becomes a migration candidate")
	fs.Int64Var(&cfg.MigrationMaxHotSize, "migration-max-hot-size", envOrDefaultInt64("MIGRATION_MAX_HOT_SIZE", 0), "total hot-tier byte budget that triggers migration, 0 means unbounded")

	fs.StringVar(&cfg.BranchProtectionRulesPath, "branch-protection-rules", envOrDefault("BRANCH_PROTECTION_RULES_PATH", ""), "path to the branch-protection rules file, empty means no rules")
	fs.StringVar(&cfg.HookRegistryConfigPath, "hook-registry-config", envOrDefault("HOOK_REGISTRY_CONFIG_PATH", ""), "path to the hook-registry config file, empty means no hooks")

	fs.IntVar(&cfg.CDCBatchSize, "cdc-batch-size", envOrDefaultInt("CDC_BATCH_SIZE", 100), "CDC pipeline batch size before a flush is forced")
	cdcBatchIntervalStr := fs.String("cdc-batch-interval", envOrDefault("CDC_BATCH_INTERVAL", "1s"), "CDC pipeline flush interval")
	fs.IntVar(&cfg.CDCMaxRetries, "cdc-max-retries", envOrDefaultInt("CDC_MAX_RETRIES", 3), "CDC sink write retry attempts before dead-lettering a batch")

	fs.IntVar(&cfg.WebhookRetryMaxAttempts, "webhook-retry-max-attempts", envOrDefaultInt("WEBHOOK_RETRY_MAX_ATTEMPTS", 5), "max webhook delivery attempts")
	webhookBaseDelayStr := fs.String("webhook-retry-base-delay", envOrDefault("WEBHOOK_RETRY_BASE_DELAY", "200ms"), "webhook retry base backoff delay")
	webhookMaxDelayStr := fs.String("webhook-retry-max-delay", envOrDefault("WEBHOOK_RETRY_MAX_DELAY", "30s"), "webhook retry max backoff delay")

	fs.StringVar(&cfg.MetricsPath, "metrics-path", envOrDefault("METRICS_PATH", "/metrics"), "path for Prometheus metrics")
	fs.StringVar(&cfg.HealthPath, "health-path", envOrDefault("HEALTH_PATH", "/healthz"), "path for health checks")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if cfg.LRUMaxBytes, err = parseByteSize(*lruMaxBytesStr); err != nil {
		return nil, fmt.Errorf("invalid lru-max-bytes: %w", err)
	}
	if cfg.MigrationMaxAgeInHot, err = time.ParseDuration(*migrationMaxAgeStr); err != nil {
		return nil, fmt.Errorf("invalid migration-max-age-in-hot: %w", err)
	}
	if cfg.CDCBatchInterval, err = time.ParseDuration(*cdcBatchIntervalStr); err != nil {
		return nil, fmt.Errorf("invalid cdc-batch-interval: %w", err)
	}
	if cfg.WebhookRetryBaseDelay, err = time.ParseDuration(*webhookBaseDelayStr); err != nil {
		return nil, fmt.Errorf("invalid webhook-retry-base-delay: %w", err)
	}
	if cfg.WebhookRetryMaxDelay, err = time.ParseDuration(*webhookMaxDelayStr); err != nil {
		return nil, fmt.Errorf("invalid webhook-retry-max-delay: %w", err)
	}

	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	if cfg.WarmBackendDSN == "" && cfg.ColdBackendDSN != "" {
		return nil, errors.New("cold-backend requires warm-backend to also be configured")
	}

	return cfg, nil
}

func validateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log-level: %s", level)
	}
}

// parseByteSize parses a plain decimal byte count. "0" means unbounded.
func parseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	return def
}
