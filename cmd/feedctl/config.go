package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/feedctl/internal/config"
	"github.com/danmuck/feedctl/internal/engine"
	"github.com/danmuck/feedctl/internal/protocol/session"
)

// feedctl config.toml key mapping to engine runtime settings.
type fileConfig struct {
	ID                     string   `toml:"id"`
	FeedConfigPath         string   `toml:"feed_config_path"`
	AdminListenAddr        string   `toml:"admin_listen_addr"`
	AdminCorsOrigins       []string `toml:"admin_cors_origins"`
	AdminToken             string   `toml:"admin_token"`
	AdminTokenEnv          string   `toml:"admin_token_env"`
	StopTimeout            string   `toml:"stop_timeout"`
	IdleTimeout            string   `toml:"idle_timeout"`
	ConnectTimeout         string   `toml:"connect_timeout"`
	TLSHandshakeTimeout    string   `toml:"tls_handshake_timeout"`
	ResponseHeaderTimeout  string   `toml:"response_header_timeout"`
	MaxChunkBytes          int      `toml:"max_chunk_bytes"`
	BackoffLinearStep      string   `toml:"backoff_linear_step"`
	BackoffLinearCap       string   `toml:"backoff_linear_cap"`
	BackoffNotModified     string   `toml:"backoff_not_modified"`
	BackoffRateLimitBase   string   `toml:"backoff_rate_limit_base"`
	BackoffServerErrorBase string   `toml:"backoff_server_error_base"`
	BackoffServerErrorCap  string   `toml:"backoff_server_error_cap"`
	DispatchWorkers        int      `toml:"dispatch_workers"`
	DispatchQueueSize      int      `toml:"dispatch_queue_size"`
	DispatchConsumeTimeout string   `toml:"dispatch_consume_timeout"`
	SecurityMode           string   `toml:"security_mode"`
	TLSCAFile              string   `toml:"tls_ca_file"`
	TLSCertFile            string   `toml:"tls_cert_file"`
	TLSKeyFile             string   `toml:"tls_key_file"`
	TLSServerName          string   `toml:"tls_server_name"`
	TLSInsecureSkipVerify  bool     `toml:"tls_insecure_skip_verify"`
}

// feedctl loader for TOML config with default overlay. The feed file named by
// feed_config_path is resolved relative to the service config.
func loadServiceConfig(path string) (engine.ServiceConfig, config.FeedConfig, error) {
	cfg := engine.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return engine.ServiceConfig{}, config.FeedConfig{}, fmt.Errorf("load feedctl config: %w", err)
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.ID = id
		}
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("admin_cors_origins") {
		cfg.AdminOrigins = normalizeList(raw.AdminCorsOrigins)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("admin_token_env") {
		name := strings.TrimSpace(raw.AdminTokenEnv)
		token := strings.TrimSpace(os.Getenv(name))
		if token == "" {
			return engine.ServiceConfig{}, config.FeedConfig{}, fmt.Errorf("load feedctl config: admin token env %s is empty", name)
		}
		cfg.AdminToken = token
	}
	if meta.IsDefined("max_chunk_bytes") {
		cfg.Session.Limits.MaxChunkBytes = raw.MaxChunkBytes
	}
	if meta.IsDefined("dispatch_workers") {
		cfg.Dispatcher.Workers = raw.DispatchWorkers
	}
	if meta.IsDefined("dispatch_queue_size") {
		cfg.Dispatcher.QueueSize = raw.DispatchQueueSize
	}
	if meta.IsDefined("security_mode") {
		cfg.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.Session.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.Session.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.Session.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_server_name") {
		cfg.Session.TLS.ServerName = strings.TrimSpace(raw.TLSServerName)
	}
	if meta.IsDefined("tls_insecure_skip_verify") {
		cfg.Session.TLS.InsecureSkipVerify = raw.TLSInsecureSkipVerify
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"stop_timeout", raw.StopTimeout, &cfg.StopTimeout},
		{"idle_timeout", raw.IdleTimeout, &cfg.Session.IdleTimeout},
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"tls_handshake_timeout", raw.TLSHandshakeTimeout, &cfg.Session.TLSHandshakeTimeout},
		{"response_header_timeout", raw.ResponseHeaderTimeout, &cfg.Session.ResponseHeaderTimeout},
		{"backoff_linear_step", raw.BackoffLinearStep, &cfg.Session.Backoff.LinearStep},
		{"backoff_linear_cap", raw.BackoffLinearCap, &cfg.Session.Backoff.LinearCap},
		{"backoff_not_modified", raw.BackoffNotModified, &cfg.Session.Backoff.NotModifiedDelay},
		{"backoff_rate_limit_base", raw.BackoffRateLimitBase, &cfg.Session.Backoff.RateLimitBase},
		{"backoff_server_error_base", raw.BackoffServerErrorBase, &cfg.Session.Backoff.ServerErrorBase},
		{"backoff_server_error_cap", raw.BackoffServerErrorCap, &cfg.Session.Backoff.ServerErrorCap},
		{"dispatch_consume_timeout", raw.DispatchConsumeTimeout, &cfg.Dispatcher.ConsumeTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return engine.ServiceConfig{}, config.FeedConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		if v <= 0 {
			return engine.ServiceConfig{}, config.FeedConfig{}, fmt.Errorf("parse %s: must be positive, got %s", d.key, v)
		}
		*d.dst = v
	}

	feedPath := strings.TrimSpace(raw.FeedConfigPath)
	if feedPath == "" {
		return engine.ServiceConfig{}, config.FeedConfig{}, fmt.Errorf("load feedctl config: feed_config_path is required")
	}
	feed, err := loadFeedRuntimeConfig(path, feedPath)
	if err != nil {
		return engine.ServiceConfig{}, config.FeedConfig{}, err
	}
	req, err := feed.Request()
	if err != nil {
		return engine.ServiceConfig{}, config.FeedConfig{}, fmt.Errorf("load feedctl config: %w", err)
	}
	cfg.Request = req

	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.ValidateClientTransport(cfg.Request.URL); err != nil {
		return engine.ServiceConfig{}, config.FeedConfig{}, fmt.Errorf("load feedctl config: %w", err)
	}
	return cfg, feed, nil
}

func loadFeedRuntimeConfig(serviceConfigPath string, feedConfigPath string) (config.FeedConfig, error) {
	resolved := strings.TrimSpace(feedConfigPath)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(serviceConfigPath), resolved)
	}
	if _, err := os.Stat(resolved); err != nil {
		return config.FeedConfig{}, fmt.Errorf(
			"load feedctl config: feed config path %q: %w",
			feedConfigPath,
			err,
		)
	}
	feed, err := config.LoadFeedConfig(resolved)
	if err != nil {
		return config.FeedConfig{}, fmt.Errorf("load feedctl config: %w", err)
	}
	return feed, nil
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, item := range in {
		v := strings.TrimSpace(item)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
