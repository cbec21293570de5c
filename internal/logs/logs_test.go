package logs

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigureLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Out = &buf
	cfg.Level = WarnLevel
	cfg.NoColor = true
	cfg.Timestamp = false
	Configure(cfg)
	t.Cleanup(func() { Configure(DefaultConfig()) })

	Infof("engine.Engine.Run hidden=%d", 1)
	Warnf("engine.Engine.Run shown=%d", 2)
	Logf("always=%v", true)

	out := buf.String()
	if strings.Contains(out, "hidden=1") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown=2") {
		t.Fatalf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "always=true") {
		t.Fatalf("missing unleveled line: %q", out)
	}
}

func TestConfigureDisabledDropsEverything(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Out = &buf
	cfg.Level = Disabled
	Configure(cfg)
	t.Cleanup(func() { Configure(DefaultConfig()) })

	Errorf("nothing")
	Logf("nothing")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestConfigureFileSink(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "feedctl.log")
	cfg := DefaultConfig()
	cfg.Out = &buf
	cfg.Bypass = true
	cfg.File.Path = path
	Configure(cfg)

	Infof("to-file key=%q", "v")
	Configure(DefaultConfig())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to-file") {
		t.Fatalf("file sink missing line: %q", string(data))
	}
	if !strings.Contains(buf.String(), "to-file") {
		t.Fatalf("console sink missing line: %q", buf.String())
	}
}
