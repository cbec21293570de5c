package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/feedctl/internal/protocol/session"
)

func writeConfigs(t *testing.T, service, feed string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "feed.toml"), []byte(feed), 0o600); err != nil {
		t.Fatalf("write feed config: %v", err)
	}
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(service), 0o600); err != nil {
		t.Fatalf("write service config: %v", err)
	}
	return path
}

const minimalFeed = `
[stream]
url = "https://stream.example/v1"
bearer_token = "abc"
`

func TestLoadServiceConfigDefaultsAndOverrides(t *testing.T) {
	cfg, feed, err := loadServiceConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ID != "feedctl.local" {
		t.Fatalf("unexpected id: %q", cfg.ID)
	}
	if cfg.AdminListenAddr != "127.0.0.1:9400" {
		t.Fatalf("unexpected admin listen: %q", cfg.AdminListenAddr)
	}
	if len(cfg.AdminOrigins) != 1 || cfg.AdminOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected origins: %+v", cfg.AdminOrigins)
	}
	if cfg.Session.IdleTimeout != 90*time.Second {
		t.Fatalf("unexpected idle timeout: %v", cfg.Session.IdleTimeout)
	}
	if cfg.Session.Backoff.LinearStep != 250*time.Millisecond || cfg.Session.Backoff.ServerErrorCap != 320*time.Second {
		t.Fatalf("unexpected backoff: %+v", cfg.Session.Backoff)
	}
	if cfg.Session.Backoff.RateLimitBase != 60*time.Second {
		t.Fatalf("expected default rate limit base, got %v", cfg.Session.Backoff.RateLimitBase)
	}
	if cfg.Dispatcher.Workers != 8 || cfg.Dispatcher.QueueSize != 2048 {
		t.Fatalf("unexpected dispatcher: %+v", cfg.Dispatcher)
	}
	if cfg.Dispatcher.ConsumeTimeout != 30*time.Second {
		t.Fatalf("unexpected consume timeout: %v", cfg.Dispatcher.ConsumeTimeout)
	}
	if cfg.Session.SecurityMode != session.SecurityModeProduction {
		t.Fatalf("unexpected security mode: %q", cfg.Session.SecurityMode)
	}
	if cfg.Request.URL != "https://api.example.com/2/tweets/search/stream" || cfg.Request.BearerToken != "example-token" {
		t.Fatalf("unexpected request: %+v", cfg.Request)
	}
	if feed.Name != "search-stream" || len(feed.Sinks) != 1 {
		t.Fatalf("unexpected feed: %+v", feed)
	}
}

func TestLoadServiceConfigMinimal(t *testing.T) {
	path := writeConfigs(t, `feed_config_path = "feed.toml"`, minimalFeed)
	cfg, _, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ID != "feedctl.local" || cfg.AdminListenAddr != "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Session.Backoff != session.DefaultBackoffConfig() {
		t.Fatalf("unexpected backoff defaults: %+v", cfg.Session.Backoff)
	}
	if cfg.Session.SecurityMode != session.SecurityModeDevelopment {
		t.Fatalf("unexpected security mode: %q", cfg.Session.SecurityMode)
	}
}

func TestLoadServiceConfigErrors(t *testing.T) {
	cases := []struct {
		name    string
		service string
		feed    string
		want    string
	}{
		{name: "bad duration", service: "feed_config_path = \"feed.toml\"\nidle_timeout = \"ninety\"", feed: minimalFeed, want: "parse idle_timeout"},
		{name: "negative duration", service: "feed_config_path = \"feed.toml\"\nbackoff_linear_cap = \"-1s\"", feed: minimalFeed, want: "must be positive"},
		{name: "missing feed path", service: "id = \"x\"", feed: minimalFeed, want: "feed_config_path is required"},
		{name: "missing feed file", service: "feed_config_path = \"nope.toml\"", feed: minimalFeed, want: "feed config path"},
		{name: "plain http in production", service: "feed_config_path = \"feed.toml\"\nsecurity_mode = \"production\"", feed: "[stream]\nurl = \"http://stream.example\"\n", want: "https"},
		{name: "empty admin token env", service: "feed_config_path = \"feed.toml\"\nadmin_token_env = \"FEEDCTL_UNSET_TOKEN_FOR_TEST\"", feed: minimalFeed, want: "admin token env"},
		{name: "empty token env", service: "feed_config_path = \"feed.toml\"", feed: "[stream]\nurl = \"https://x\"\nbearer_token_env = \"FEEDCTL_UNSET_TOKEN_FOR_TEST\"\n", want: "bearer token required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("FEEDCTL_UNSET_TOKEN_FOR_TEST", "")
			_, _, err := loadServiceConfig(writeConfigs(t, tc.service, tc.feed))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadServiceConfigAdminTokenEnv(t *testing.T) {
	t.Setenv("FEEDCTL_ADMIN_TOKEN_FOR_TEST", " admin ")
	path := writeConfigs(t, "feed_config_path = \"feed.toml\"\nadmin_token_env = \"FEEDCTL_ADMIN_TOKEN_FOR_TEST\"", minimalFeed)
	cfg, _, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.AdminToken != "admin" {
		t.Fatalf("unexpected admin token: %q", cfg.AdminToken)
	}
}
