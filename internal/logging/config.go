package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/feedctl/internal/logs"
)

const (
	EnvLogLevel     = "FEEDCTL_LOG_LEVEL"
	EnvLogTimestamp = "FEEDCTL_LOG_TIMESTAMP"
	EnvLogNoColor   = "FEEDCTL_LOG_NOCOLOR"
	EnvLogBypass    = "FEEDCTL_LOG_BYPASS"
	EnvLogFile      = "FEEDCTL_LOG_FILE"

	// Rotation knobs for EnvLogFile; ignored without it.
	EnvLogFileMaxMB    = "FEEDCTL_LOG_FILE_MAX_MB"
	EnvLogFileBackups  = "FEEDCTL_LOG_FILE_BACKUPS"
	EnvLogFileMaxDays  = "FEEDCTL_LOG_FILE_MAX_DAYS"
	EnvLogFileCompress = "FEEDCTL_LOG_FILE_COMPRESS"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)
		logs.Configure(cfg)
	})
}

func defaultConfig(profile Profile) logs.Config {
	cfg := logs.DefaultConfig()
	switch profile {
	case ProfileTest:
		cfg.Level = logs.DebugLevel
		cfg.Timestamp = false
	default:
		cfg.Level = logs.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

func applyEnvOverrides(cfg *logs.Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogBypass)); ok {
		cfg.Bypass = v
	}
	applyFileOverrides(cfg)
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// applyFileOverrides tees output into a rotated file. Color codes are turned
// off with a file sink unless EnvLogNoColor says otherwise.
func applyFileOverrides(cfg *logs.Config) {
	path := strings.TrimSpace(os.Getenv(EnvLogFile))
	if path == "" {
		return
	}
	cfg.File.Path = path
	cfg.NoColor = true
	if n, ok := parsePositive(os.Getenv(EnvLogFileMaxMB)); ok {
		cfg.File.MaxSizeMB = n
	}
	if n, ok := parsePositive(os.Getenv(EnvLogFileBackups)); ok {
		cfg.File.MaxBackups = n
	}
	if n, ok := parsePositive(os.Getenv(EnvLogFileMaxDays)); ok {
		cfg.File.MaxAgeDays = n
	}
	if v, ok := parseBool(os.Getenv(EnvLogFileCompress)); ok {
		cfg.File.Compress = v
	}
}

func parseLevel(raw string) (logs.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return logs.InfoLevel, false
	case "trace", "diagnostics":
		return logs.TraceLevel, true
	case "debug":
		return logs.DebugLevel, true
	case "info":
		return logs.InfoLevel, true
	case "warn", "warning":
		return logs.WarnLevel, true
	case "error":
		return logs.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return logs.Disabled, true
	default:
		return logs.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func parsePositive(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
