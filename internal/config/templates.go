package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "feed":
		return feedTemplate, nil
	case "service":
		return serviceTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const feedTemplate = `name = "search-stream"

[stream]
url = "https://api.example.com/2/tweets/search/stream"
bearer_token_env = "FEEDCTL_BEARER_TOKEN"
user_agent = "feedctl/0.1"

[stream.headers]
Accept-Encoding = "identity"

[[sinks]]
kind = "log"

[[sinks]]
kind = "file"
path = "local/feed/events.jsonl"
`

const serviceTemplate = `id = "feedctl.local"
feed_config_path = "feed.toml"
admin_listen_addr = "127.0.0.1:9400"
admin_cors_origins = ["http://localhost:3000"]
admin_token_env = "FEEDCTL_ADMIN_TOKEN"

idle_timeout = "90s"
connect_timeout = "10s"
tls_handshake_timeout = "10s"
response_header_timeout = "30s"
max_chunk_bytes = 1048576

backoff_linear_step = "250ms"
backoff_linear_cap = "16s"
backoff_not_modified = "60s"
backoff_rate_limit_base = "60s"
backoff_server_error_base = "5s"
backoff_server_error_cap = "320s"

dispatch_workers = 4
dispatch_queue_size = 1024
dispatch_consume_timeout = "30s"

security_mode = "production"
`
