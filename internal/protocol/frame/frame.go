package frame

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrChunkTooLarge reports a line over MaxChunkBytes. The rest of the line has
// already been discarded, so the Reader stays usable.
var ErrChunkTooLarge = errors.New("frame: chunk exceeds max size")

// Limits constrains chunk buffering.
type Limits struct {
	MaxChunkBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxChunkBytes: 1 << 20,
	}
}

// Reader splits a streaming response body into newline-delimited chunks.
// A chunk is returned without its trailing '\n'; a '\r' is left in place and
// treated as noise by Classify.
type Reader struct {
	r      *bufio.Reader
	limits Limits
}

func NewReader(r io.Reader, limits Limits) *Reader {
	if limits.MaxChunkBytes <= 0 {
		limits = DefaultLimits()
	}
	size := 64 * 1024
	if limits.MaxChunkBytes < size {
		size = limits.MaxChunkBytes
	}
	return &Reader{
		r:      bufio.NewReaderSize(r, size),
		limits: limits,
	}
}

// ReadChunk returns the next chunk. A final unterminated chunk is returned on
// its own and the following call reports io.EOF.
func (r *Reader) ReadChunk() ([]byte, error) {
	var buf bytes.Buffer
	for {
		line, err := r.r.ReadSlice('\n')
		if buf.Len()+len(line) > r.limits.MaxChunkBytes {
			if derr := r.discardLine(err); derr != nil {
				return nil, derr
			}
			return nil, ErrChunkTooLarge
		}
		buf.Write(line)
		switch {
		case err == nil:
			return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && buf.Len() > 0:
			return buf.Bytes(), nil
		default:
			return nil, err
		}
	}
}

// discardLine skips to the end of the current line. err is the result of the
// read that overflowed.
func (r *Reader) discardLine(err error) error {
	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = r.r.ReadSlice('\n')
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
