package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// WebhookConfig is one webhook entry in a hook-registry config file.
type WebhookConfig struct {
	ID       string `json:"id"`
	Point    Point  `json:"point"`
	URL      string `json:"url"`
	Secret   string `json:"secret,omitempty"`
	Priority int    `json:"priority,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// LoadWebhookConfigs reads a JSON array of WebhookConfig from path. An
// empty path is not an error: it yields no webhooks configured.
func LoadWebhookConfigs(path string) ([]WebhookConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hooks: read hook registry config: %w", err)
	}
	var configs []WebhookConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("hooks: parse hook registry config: %w", err)
	}
	return configs, nil
}

// RegisterWebhooks builds a Webhook Runner for each config entry and
// registers it on the registry.
func RegisterWebhooks(registry *Registry, configs []WebhookConfig) error {
	for _, c := range configs {
		wh := NewWebhook(c.URL, c.Secret)

		var timeout time.Duration
		if c.Timeout != "" {
			var err error
			if timeout, err = time.ParseDuration(c.Timeout); err != nil {
				return fmt.Errorf("hooks: webhook %s: invalid timeout: %w", c.ID, err)
			}
		}

		registry.Register(Hook{
			ID:       c.ID,
			Point:    c.Point,
			Priority: c.Priority,
			Timeout:  timeout,
			Enabled:  true,
			Kind:     "webhook",
			Runner:   wh,
		})
	}
	return nil
}
