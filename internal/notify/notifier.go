// Package notify delivers OCR matches to the outbound webhook. Delivery
// failures are logged by callers and never fatal.
package notify

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Notifier is the push sink the OCR gate forwards matches to.
type Notifier interface {
	NotifyImage(ctx context.Context, imagePath string) error
	NotifyText(ctx context.Context, message string) error
}

// Config selects and tunes the webhook backend.
type Config struct {
	WebhookURL string
	Timeout    time.Duration
}

// New builds a webhook-backed notifier, or a noop one when no webhook is
// configured.
func New(cfg Config) Notifier {
	url := strings.TrimSpace(cfg.WebhookURL)
	if url == "" {
		return noopNotifier{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &webhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookNotifier struct {
	url    string
	client *http.Client
}

// NotifyImage posts the image inline as a base64 payload with its MD5, the
// format the group-bot webhook expects.
func (n *webhookNotifier) NotifyImage(ctx context.Context, imagePath string) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image %s: %w", imagePath, err)
	}
	sum := md5.Sum(data)
	payload := map[string]any{
		"msgtype": "image",
		"image": map[string]string{
			"base64": base64.StdEncoding.EncodeToString(data),
			"md5":    hex.EncodeToString(sum[:]),
		},
	}
	return n.post(ctx, payload)
}

// NotifyText posts a plain text message.
func (n *webhookNotifier) NotifyText(ctx context.Context, message string) error {
	payload := map[string]any{
		"msgtype": "text",
		"text": map[string]string{
			"content": message,
		},
	}
	return n.post(ctx, payload)
}

func (n *webhookNotifier) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyImage(context.Context, string) error { return nil }
func (noopNotifier) NotifyText(context.Context, string) error  { return nil }
