package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/danmuck/feedctl/internal/logs"
	"github.com/danmuck/feedctl/internal/observability"
)

var ErrListenAddrRequired = errors.New("server: listen address required")

// Config configures the admin HTTP surface.
type Config struct {
	Addr            string
	Node            string
	Version         string
	AllowOrigins    []string
	ShutdownTimeout time.Duration
	// Token guards /status and /metrics when set. /health stays open.
	Token string
}

func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:9400",
		Node:            "feedctl",
		Version:         "0.1.0",
		AllowOrigins:    []string{"http://localhost:3000"},
		ShutdownTimeout: 5 * time.Second,
	}
}

// StatusFunc returns the JSON body served at /status.
type StatusFunc func() any

// Server is the read-only admin API: health, status and metrics.
type Server struct {
	cfg       Config
	router    *gin.Engine
	status    StatusFunc
	startedAt time.Time
}

func New(cfg Config, status StatusFunc) *Server {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.Node) == "" {
		cfg.Node = def.Node
	}
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = def.Version
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if status == nil {
		status = func() any { return gin.H{} }
	}
	observability.RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.InitLogger(cfg.Node), "/metrics", "/health"))
	r.Use(observability.RequestMetricsMiddleware(cfg.Node))
	if len(cfg.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	s := &Server{
		cfg:       cfg,
		router:    r,
		status:    status,
		startedAt: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		return ErrListenAddrRequired
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logs.Infof("server.Server.Serve listening addr=%s node=%s", ln.Addr(), s.cfg.Node)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logs.Warnf("server.Server.Serve shutdown err=%v", err)
		return err
	}
	logs.Infof("server.Server.Serve stopped addr=%s", ln.Addr())
	return nil
}
