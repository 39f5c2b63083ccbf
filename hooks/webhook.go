package hooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"githost.dev/githost/retry"
)

// WebhookPayload is the JSON body posted to a webhook endpoint.
type WebhookPayload struct {
	Point      string      `json:"point"`
	Repository string      `json:"repository"`
	Actor      string      `json:"actor"`
	Updates    []RefUpdate `json:"updates,omitempty"`
}

// Webhook is a Runner that POSTs the hook context to an HTTP endpoint,
// optionally HMAC-signing the body and retrying transient failures.
type Webhook struct {
	URL       string
	Secret    string // when non-empty, body is signed and sent in X-Webhook-Signature
	Client    *http.Client
	Retrier   retry.Retrier
	Observer  func(statusCode int, body []byte) // optional output-streaming hook
}

// NewWebhook builds a Webhook runner with sensible defaults: the default
// HTTP client and an exponential backoff retrier excluding 4xx responses.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		URL:     url,
		Secret:  secret,
		Client:  http.DefaultClient,
		Retrier: retry.NewExponentialBackoffRetrier(),
	}
}

// Run implements Runner by dispatching the webhook and treating any
// non-2xx, non-retryable response as a hook failure.
func (w *Webhook) Run(ctx context.Context, hc HookContext, update *RefUpdate) error {
	updates := hc.Updates
	if update != nil {
		updates = []RefUpdate{*update}
	}

	payload := WebhookPayload{Point: string(hc.Point), Repository: hc.Repository, Actor: hc.Actor, Updates: updates}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("hooks: marshal webhook payload: %w", err)
	}

	statusCode, err := retry.Do(ctx, w.Retrier, func() (int, int, error) {
		return w.post(ctx, string(hc.Point), body)
	})
	if err != nil {
		return fmt.Errorf("hooks: webhook %s: %w", w.URL, err)
	}
	if statusCode >= 300 {
		return fmt.Errorf("hooks: webhook %s returned status %d", w.URL, statusCode)
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, point string, body []byte) (int, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hook-Point", point)
	if w.Secret != "" {
		req.Header.Set("X-Webhook-Signature", signBody(w.Secret, body))
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if w.Observer != nil {
		w.Observer(resp.StatusCode, respBody)
	}
	if resp.StatusCode >= 500 {
		return resp.StatusCode, resp.StatusCode, fmt.Errorf("server error: %d", resp.StatusCode)
	}
	return resp.StatusCode, resp.StatusCode, nil
}

// signBody returns "sha256=" followed by the hex-encoded HMAC-SHA256 of body
// using secret, the value sent in the X-Webhook-Signature header.
func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
