package session

import (
	"time"

	"github.com/danmuck/feedctl/internal/protocol/frame"
)

// SecurityMode selects how strictly the opener validates transport settings.
type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// TLSConfig configures the HTTPS client used by the opener.
type TLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// BackoffConfig holds the reconnect delay table constants.
type BackoffConfig struct {
	LinearStep       time.Duration
	LinearCap        time.Duration
	NotModifiedDelay time.Duration
	RateLimitBase    time.Duration
	ServerErrorBase  time.Duration
	ServerErrorCap   time.Duration
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		LinearStep:       250 * time.Millisecond,
		LinearCap:        16 * time.Second,
		NotModifiedDelay: 60 * time.Second,
		RateLimitBase:    60 * time.Second,
		ServerErrorBase:  5 * time.Second,
		ServerErrorCap:   320 * time.Second,
	}
}

// Config defines per-attempt transport and reliability settings.
type Config struct {
	IdleTimeout           time.Duration
	ConnectTimeout        time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	Limits                frame.Limits
	Backoff               BackoffConfig
	SecurityMode          SecurityMode
	TLS                   TLSConfig
}

func DefaultConfig() Config {
	return Config{
		IdleTimeout:           90 * time.Second,
		ConnectTimeout:        10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		Limits:                frame.DefaultLimits(),
		Backoff:               DefaultBackoffConfig(),
		SecurityMode:          SecurityModeDevelopment,
	}
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.TLSHandshakeTimeout <= 0 {
		c.TLSHandshakeTimeout = def.TLSHandshakeTimeout
	}
	if c.ResponseHeaderTimeout <= 0 {
		c.ResponseHeaderTimeout = def.ResponseHeaderTimeout
	}
	if c.Limits.MaxChunkBytes <= 0 {
		c.Limits = def.Limits
	}
	c.Backoff = c.Backoff.WithDefaults()
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	return c
}

// WithDefaults fills zero values from DefaultBackoffConfig.
func (b BackoffConfig) WithDefaults() BackoffConfig {
	def := DefaultBackoffConfig()
	if b.LinearStep <= 0 {
		b.LinearStep = def.LinearStep
	}
	if b.LinearCap <= 0 {
		b.LinearCap = def.LinearCap
	}
	if b.NotModifiedDelay <= 0 {
		b.NotModifiedDelay = def.NotModifiedDelay
	}
	if b.RateLimitBase <= 0 {
		b.RateLimitBase = def.RateLimitBase
	}
	if b.ServerErrorBase <= 0 {
		b.ServerErrorBase = def.ServerErrorBase
	}
	if b.ServerErrorCap <= 0 {
		b.ServerErrorCap = def.ServerErrorCap
	}
	return b
}
