package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var (
	ErrStreamURLRequired   = errors.New("config: stream url required")
	ErrBearerTokenRequired = errors.New("config: bearer token required")
	ErrUnknownSink         = errors.New("config: unknown sink")
)

// FeedConfig describes what to consume and where records go.
type FeedConfig struct {
	Name   string       `toml:"name"`
	Stream StreamConfig `toml:"stream"`
	Sinks  []SinkConfig `toml:"sinks"`
}

// StreamConfig is the pre-authorized request descriptor.
type StreamConfig struct {
	URL            string            `toml:"url"`
	BearerToken    string            `toml:"bearer_token"`
	BearerTokenEnv string            `toml:"bearer_token_env"`
	UserAgent      string            `toml:"user_agent"`
	Headers        map[string]string `toml:"headers"`
}

// SinkConfig selects one consumer. Kind is log, webhook or file.
type SinkConfig struct {
	Kind    string            `toml:"kind"`
	URL     string            `toml:"url"`
	Path    string            `toml:"path"`
	Timeout string            `toml:"timeout"`
	Headers map[string]string `toml:"headers"`
}

func LoadFeedConfig(path string) (FeedConfig, error) {
	var cfg FeedConfig
	if err := loadToml(path, &cfg); err != nil {
		return FeedConfig{}, err
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "feed"
	}
	if strings.TrimSpace(cfg.Stream.UserAgent) == "" {
		cfg.Stream.UserAgent = "feedctl/0.1"
	}
	if len(cfg.Sinks) == 0 {
		cfg.Sinks = []SinkConfig{{Kind: "log"}}
	}
	if err := ValidateFeedConfig(cfg); err != nil {
		return FeedConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateFeedConfig(cfg FeedConfig) error {
	raw := strings.TrimSpace(cfg.Stream.URL)
	if raw == "" {
		return ErrStreamURLRequired
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("stream url invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("stream url scheme must be http or https, got %q", u.Scheme)
	}
	if strings.TrimSpace(cfg.Stream.BearerToken) != "" && strings.TrimSpace(cfg.Stream.BearerTokenEnv) != "" {
		return fmt.Errorf("stream config sets both bearer_token and bearer_token_env")
	}
	for i, sink := range cfg.Sinks {
		if err := ValidateSinkEntry(sink); err != nil {
			return fmt.Errorf("sink[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func ValidateSinkEntry(cfg SinkConfig) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "log":
	case "webhook":
		if strings.TrimSpace(cfg.URL) == "" {
			return fmt.Errorf("url is required")
		}
	case "file":
		if strings.TrimSpace(cfg.Path) == "" {
			return fmt.Errorf("path is required")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSink, cfg.Kind)
	}
	if strings.TrimSpace(cfg.Timeout) != "" {
		if _, err := time.ParseDuration(strings.TrimSpace(cfg.Timeout)); err != nil {
			return fmt.Errorf("timeout invalid: %w", err)
		}
	}
	return nil
}
