package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/danmuck/feedctl/internal/auth"
	"github.com/danmuck/feedctl/internal/logs"
	"github.com/danmuck/feedctl/internal/observability"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.startedAt).String(),
			"service": s.cfg.Node,
			"version": s.cfg.Version,
		})
	})

	guarded := s.router.Group("/")
	if token := strings.TrimSpace(s.cfg.Token); token != "" {
		guarded.Use(requireToken(auth.StaticToken{Token: token}))
	}
	guarded.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.status())
	})
	guarded.GET("/metrics", gin.WrapH(observability.Handler()))
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.CheckHeader(v, c.GetHeader("Authorization")); err != nil {
			logs.Debugf("server.requireToken denied path=%s err=%v", c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
