package engine

import (
	"context"
	"errors"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/feedctl/internal/consumer"
	"github.com/danmuck/feedctl/internal/logs"
	"github.com/danmuck/feedctl/internal/protocol/session"
	"github.com/danmuck/feedctl/internal/server"
)

var ErrNilConsumer = errors.New("engine: nil consumer")

// ServiceConfig configures the standalone feedctl runtime.
type ServiceConfig struct {
	ID              string
	Session         session.Config
	Request         session.Request
	Dispatcher      consumer.DispatcherConfig
	AdminListenAddr string
	AdminOrigins    []string
	AdminToken      string
	StopTimeout     time.Duration
}

// Service defaults for standalone runtime configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ID:              "feedctl.local",
		Session:         session.DefaultConfig(),
		Dispatcher:      consumer.DefaultDispatcherConfig(),
		AdminListenAddr: "",
		AdminOrigins:    []string{"http://localhost:3000"},
		StopTimeout:     10 * time.Second,
	}
}

// Service runs one engine with its dispatcher and optional admin API.
type Service struct {
	cfg      ServiceConfig
	consumer consumer.Consumer
	closers  []io.Closer
	opener   session.Opener
	opts     []Option

	mu         sync.RWMutex
	engine     *Engine
	dispatcher *consumer.Dispatcher
}

// NewService wires the consumer. closers run after the dispatcher drains.
func NewService(cfg ServiceConfig, c consumer.Consumer, closers ...io.Closer) *Service {
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultServiceConfig().StopTimeout
	}
	return &Service{cfg: cfg, consumer: c, closers: closers}
}

// WithOpener overrides the HTTP opener, mainly for tests.
func (s *Service) WithOpener(o session.Opener, opts ...Option) *Service {
	s.opener = o
	s.opts = opts
	return s
}

// Run blocks until SIGINT/SIGTERM or a fatal stream outcome.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

func (s *Service) RunContext(ctx context.Context) error {
	if s.consumer == nil {
		return ErrNilConsumer
	}
	if err := s.cfg.Session.ValidateClientTransport(s.cfg.Request.URL); err != nil {
		return err
	}
	opener := s.opener
	if opener == nil {
		httpOpener, err := session.NewHTTPOpener(s.cfg.Session)
		if err != nil {
			return err
		}
		opener = httpOpener
	}

	dispatcher, err := consumer.NewDispatcher(s.consumer, s.cfg.Dispatcher)
	if err != nil {
		return err
	}
	eng, err := New(Config{Session: s.cfg.Session, Request: s.cfg.Request}, opener, dispatcher, s.opts...)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.engine = eng
	s.dispatcher = dispatcher
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The dispatcher outlives runCtx so shutdown drains with live contexts.
	if err := dispatcher.Start(runCtx); err != nil {
		return err
	}
	defer s.shutdown()

	adminErr := make(chan error, 1)
	if strings.TrimSpace(s.cfg.AdminListenAddr) != "" {
		admin := server.New(server.Config{
			Addr:         s.cfg.AdminListenAddr,
			Node:         s.cfg.ID,
			AllowOrigins: s.cfg.AdminOrigins,
			Token:        s.cfg.AdminToken,
		}, func() any { return s.Status() })
		go func() {
			adminErr <- admin.Run(runCtx)
		}()
	}

	logs.Infof(
		"engine.Service.Run ready id=%q url=%q workers=%d queue=%d admin=%q",
		s.cfg.ID,
		s.cfg.Request.URL,
		s.cfg.Dispatcher.Workers,
		s.cfg.Dispatcher.QueueSize,
		s.cfg.AdminListenAddr,
	)

	engineErr := make(chan error, 1)
	go func() {
		engineErr <- eng.Run(runCtx)
	}()

	select {
	case err := <-engineErr:
		return err
	case err := <-adminErr:
		cancel()
		<-engineErr
		return err
	}
}

func (s *Service) shutdown() {
	if err := s.dispatcher.Stop(s.cfg.StopTimeout); err != nil {
		logs.Warnf("engine.Service.shutdown dispatcher err=%v", err)
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			logs.Warnf("engine.Service.shutdown close err=%v", err)
		}
	}
	stats := s.dispatcher.Stats()
	logs.Infof(
		"engine.Service.shutdown id=%q processed=%d failed=%d dropped=%d",
		s.cfg.ID,
		stats.Processed,
		stats.Failed,
		stats.Dropped,
	)
}

// ServiceStatus is the /status payload.
type ServiceStatus struct {
	ID       string         `json:"id"`
	Stream   Snapshot       `json:"stream"`
	Dispatch consumer.Stats `json:"dispatch"`
}

func (s *Service) Status() ServiceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := ServiceStatus{ID: s.cfg.ID}
	if s.engine != nil {
		out.Stream = s.engine.Snapshot()
	}
	if s.dispatcher != nil {
		out.Dispatch = s.dispatcher.Stats()
	}
	return out
}
