package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadArgs_Defaults(t *testing.T) {
	cfg, err := LoadArgs(nil)
	require.NoError(t, err)
	require.Equal(t, ":8443", cfg.ListenAddr)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "memory://", cfg.HotBackendDSN)
	require.Equal(t, 100, cfg.CDCBatchSize)
	require.Equal(t, 5, cfg.WebhookRetryMaxAttempts)
}

func TestLoadArgs_OverridesFlags(t *testing.T) {
	cfg, err := LoadArgs([]string{
		"-listen-addr=:9000",
		"-log-level=debug",
		"-cdc-batch-size=50",
		"-migration-max-age-in-hot=24h",
	})
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddr)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 50, cfg.CDCBatchSize)
	require.Equal(t, 24*60*60*1e9, float64(cfg.MigrationMaxAgeInHot))
}

func TestLoadArgs_RejectsUnknownLogLevel(t *testing.T) {
	_, err := LoadArgs([]string{"-log-level=verbose"})
	require.Error(t, err)
}

func TestLoadArgs_RejectsColdWithoutWarm(t *testing.T) {
	_, err := LoadArgs([]string{"-cold-backend=file:///tmp/cold"})
	require.Error(t, err)
}

func TestLoadArgs_RejectsMalformedDuration(t *testing.T) {
	_, err := LoadArgs([]string{"-cdc-batch-interval=not-a-duration"})
	require.Error(t, err)
}

func TestEnvOrDefault_UsesEnvironment(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":7000")
	cfg, err := LoadArgs(nil)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.ListenAddr)
}
