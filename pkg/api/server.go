// Package api exposes the triage pipeline over HTTP. A triage request runs
// one pipeline and streams every update to the client as server-sent
// events, terminated by a result event.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/triage-labs/sleuth/pkg/config"
	"github.com/triage-labs/sleuth/pkg/llm"
	"github.com/triage-labs/sleuth/pkg/observability"
	"github.com/triage-labs/sleuth/pkg/version"
)

// Server wires the HTTP surface around one configured agent.
type Server struct {
	cfg    *config.Config
	client llm.Client
	obs    observability.Client
	router *gin.Engine
}

// NewServer builds the router. obs may be nil when logs are disabled.
func NewServer(cfg *config.Config, client llm.Client, obs observability.Client) *Server {
	s := &Server{cfg: cfg, client: client, obs: obs}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", s.handleHealth)
	v1 := router.Group("/api/v1")
	v1.POST("/triage", s.handleTriage)

	s.router = router
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	slog.Info("API listening", "addr", addr, "version", version.String())
	return s.router.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": version.String(),
	})
}

// requestLogger logs one line per request via slog, matching the process-wide
// logging setup instead of gin's default writer.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status())
	}
}
