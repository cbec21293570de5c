package consumer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrFilePathRequired = errors.New("consumer: file path required")

// FileConsumer appends events as JSON lines.
type FileConsumer struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

func NewFileConsumer(path string) (*FileConsumer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrFilePathRequired
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("consumer: create output dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("consumer: open output file: %w", err)
	}
	return &FileConsumer{f: f, w: bufio.NewWriter(f), path: path}, nil
}

func (c *FileConsumer) Name() string { return "file" }

func (c *FileConsumer) Consume(_ context.Context, ev Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("consumer: encode event: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return os.ErrClosed
	}
	if _, err := c.w.Write(append(line, '\n')); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *FileConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	flushErr := c.w.Flush()
	closeErr := c.f.Close()
	c.f = nil
	return errors.Join(flushErr, closeErr)
}
