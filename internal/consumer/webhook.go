package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrWebhookURLRequired = errors.New("consumer: webhook url required")
	ErrWebhookStatus      = errors.New("consumer: webhook rejected event")
)

// WebhookConfig configures HTTP POST delivery.
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// WebhookConsumer POSTs each event as JSON.
type WebhookConsumer struct {
	cfg    WebhookConfig
	client *http.Client
}

func NewWebhookConsumer(cfg WebhookConfig) (*WebhookConsumer, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, ErrWebhookURLRequired
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("consumer: parse webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("consumer: unsupported webhook scheme %q", u.Scheme)
	}
	cfg.URL = raw
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookConsumer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *WebhookConsumer) Name() string { return "webhook" }

func (c *WebhookConsumer) Consume(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("consumer: encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status=%d", ErrWebhookStatus, resp.StatusCode)
	}
	return nil
}
