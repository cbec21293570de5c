// Package logs is the process-wide printf-style leveled logger.
//
// Messages follow the "pkg.Type.method key=value ..." convention and are
// rendered through zerolog. Output goes to stdout by default and can be
// teed into a size-rotated file.
package logs

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level mirrors zerolog levels so callers do not import zerolog directly.
type Level = zerolog.Level

const (
	TraceLevel = zerolog.TraceLevel
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	Disabled   = zerolog.Disabled
)

// FileConfig enables a rotated log file next to console output.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config controls logger output.
type Config struct {
	Level     Level
	Timestamp bool
	NoColor   bool
	// Bypass skips level/timestamp decoration and prints the raw message.
	Bypass bool
	Out    io.Writer
	File   FileConfig
}

func DefaultConfig() Config {
	return Config{
		Level:     InfoLevel,
		Timestamp: true,
		Out:       os.Stdout,
		File: FileConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

var (
	mu     sync.RWMutex
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	rotator *lumberjack.Logger
)

// Configure replaces the process logger. It closes any previously opened file.
func Configure(cfg Config) {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	var console io.Writer
	if cfg.Bypass {
		console = out
	} else {
		cw := zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		}
		if !cfg.Timestamp {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		console = cw
	}

	writers := []io.Writer{console}
	var next *lumberjack.Logger
	if cfg.File.Path != "" {
		next = &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		writers = append(writers, next)
	}

	var w io.Writer = writers[0]
	if len(writers) > 1 {
		w = zerolog.MultiLevelWriter(writers...)
	}
	ctx := zerolog.New(w).Level(cfg.Level).With()
	if cfg.Timestamp && !cfg.Bypass {
		ctx = ctx.Timestamp()
	}

	mu.Lock()
	prev := rotator
	logger = ctx.Logger()
	rotator = next
	mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
}

// Logger returns the underlying zerolog logger for structured call sites.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Tracef(format string, args ...any) { emit(TraceLevel, format, args...) }
func Debugf(format string, args ...any) { emit(DebugLevel, format, args...) }
func Infof(format string, args ...any)  { emit(InfoLevel, format, args...) }
func Warnf(format string, args ...any)  { emit(WarnLevel, format, args...) }
func Errorf(format string, args ...any) { emit(ErrorLevel, format, args...) }

// Logf writes regardless of the configured level.
func Logf(format string, args ...any) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Log().Msg(fmt.Sprintf(format, args...))
}

func emit(level Level, format string, args ...any) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	e := l.WithLevel(level)
	if e == nil {
		return
	}
	e.Msg(fmt.Sprintf(format, args...))
}
