package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/feedctl/internal/consumer"
	"github.com/danmuck/feedctl/internal/protocol/session"
)

// Request resolves the stream section into a session request. An env-backed
// token must be present at call time.
func (c FeedConfig) Request() (session.Request, error) {
	token := strings.TrimSpace(c.Stream.BearerToken)
	if name := strings.TrimSpace(c.Stream.BearerTokenEnv); name != "" {
		token = strings.TrimSpace(os.Getenv(name))
		if token == "" {
			return session.Request{}, fmt.Errorf("%w: env %s is empty", ErrBearerTokenRequired, name)
		}
	}
	headers := make(map[string]string, len(c.Stream.Headers))
	for k, v := range c.Stream.Headers {
		headers[k] = v
	}
	return session.Request{
		URL:         strings.TrimSpace(c.Stream.URL),
		BearerToken: token,
		UserAgent:   strings.TrimSpace(c.Stream.UserAgent),
		Headers:     headers,
	}, nil
}

// Consumers builds the configured sinks. Closers must be closed after the
// dispatcher has drained.
func (c FeedConfig) Consumers(logger zerolog.Logger) (consumer.Consumer, []io.Closer, error) {
	out := make(consumer.Multi, 0, len(c.Sinks))
	closers := make([]io.Closer, 0)
	for i, sink := range c.Sinks {
		built, closer, err := buildSink(sink, logger)
		if err != nil {
			for _, cl := range closers {
				_ = cl.Close()
			}
			return nil, nil, fmt.Errorf("sink[%d]: %w", i, err)
		}
		out = append(out, built)
		if closer != nil {
			closers = append(closers, closer)
		}
	}
	if len(out) == 1 {
		return out[0], closers, nil
	}
	return out, closers, nil
}

func buildSink(cfg SinkConfig, logger zerolog.Logger) (consumer.Consumer, io.Closer, error) {
	var timeout time.Duration
	if raw := strings.TrimSpace(cfg.Timeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("parse timeout: %w", err)
		}
		timeout = d
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "log":
		return consumer.NewLogConsumer(logger), nil, nil
	case "webhook":
		c, err := consumer.NewWebhookConsumer(consumer.WebhookConfig{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: timeout,
		})
		return c, nil, err
	case "file":
		c, err := consumer.NewFileConsumer(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownSink, cfg.Kind)
	}
}
