package session

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/feedctl/internal/protocol/frame"
)

var ErrStreamURLRequired = errors.New("session: stream url required")

// Request is the pre-authorized stream descriptor.
type Request struct {
	URL         string
	BearerToken string
	UserAgent   string
	Headers     map[string]string
}

// Stream is one open response. Next blocks until a chunk arrives, the stream
// ends, or ctx (the context passed to Open) is cancelled.
type Stream interface {
	StatusCode() int
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Opener issues the streaming request. Cancelling ctx must abort both the
// request and any in-flight Next.
type Opener interface {
	Open(ctx context.Context, req Request) (Stream, error)
}

// HTTPOpener opens streams over net/http.
type HTTPOpener struct {
	client *http.Client
	limits frame.Limits
}

func NewHTTPOpener(cfg Config) (*HTTPOpener, error) {
	cfg = cfg.WithDefaults()
	tlsCfg, err := cfg.ClientTLSConfig()
	if err != nil {
		return nil, err
	}
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       tlsCfg,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          1,
		IdleConnTimeout:       90 * time.Second,
	}
	return NewHTTPOpenerWithClient(&http.Client{Transport: transport}, cfg.Limits), nil
}

// NewHTTPOpenerWithClient uses client as-is. The client must not set an
// overall Timeout; streams are unbounded in length.
func NewHTTPOpenerWithClient(client *http.Client, limits frame.Limits) *HTTPOpener {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPOpener{client: client, limits: limits}
}

func (o *HTTPOpener) Open(ctx context.Context, req Request) (Stream, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, ErrStreamURLRequired
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(req.URL), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if token := strings.TrimSpace(req.BearerToken); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if ua := strings.TrimSpace(req.UserAgent); ua != "" {
		httpReq.Header.Set("User-Agent", ua)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	return &httpStream{
		resp:   resp,
		reader: frame.NewReader(resp.Body, o.limits),
	}, nil
}

type httpStream struct {
	resp   *http.Response
	reader *frame.Reader
}

func (s *httpStream) StatusCode() int {
	return s.resp.StatusCode
}

// Next ignores ctx; the request context already unblocks body reads.
func (s *httpStream) Next(context.Context) ([]byte, error) {
	return s.reader.ReadChunk()
}

func (s *httpStream) Close() error {
	return s.resp.Body.Close()
}
