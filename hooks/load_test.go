package hooks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWebhookConfigs_EmptyPath(t *testing.T) {
	configs, err := LoadWebhookConfigs("")
	require.NoError(t, err)
	require.Nil(t, configs)
}

func TestLoadWebhookConfigs_ParsesAndRegisters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hooks.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "audit", "point": "post-receive", "url": "http://example.com/hook", "priority": 10, "timeout": "5s"}
	]`), 0o644))

	configs, err := LoadWebhookConfigs(path)
	require.NoError(t, err)
	require.Len(t, configs, 1)

	registry := NewRegistry()
	require.NoError(t, RegisterWebhooks(registry, configs))

	registered := registry.Hooks(PointPostReceive)
	require.Len(t, registered, 1)
	require.Equal(t, "audit", registered[0].ID)
	require.True(t, registered[0].Enabled)
}

func TestLoadWebhookConfigs_InvalidTimeout(t *testing.T) {
	registry := NewRegistry()
	err := RegisterWebhooks(registry, []WebhookConfig{
		{ID: "bad", Point: PointPreReceive, URL: "http://example.com", Timeout: "not-a-duration"},
	})
	require.Error(t, err)
}
