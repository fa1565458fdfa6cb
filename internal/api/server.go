// Package api provides the HTTP server for the gateway: ingress routes for
// the three request dialects, provider-scoped variants, the passthrough
// management surface, and observability endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/llmux/llmux/internal/config"
	"github.com/llmux/llmux/internal/logging"
	"github.com/llmux/llmux/internal/provider"
	"github.com/llmux/llmux/internal/proxy"
	"github.com/llmux/llmux/internal/upstream"
)

// managementPrefixes are the gateway surfaces proxied to the upstream
// passthrough.
var managementPrefixes = []string{
	"/api/internal", "/api/user", "/api/auth", "/api/meta", "/api/ads",
	"/api/telemetry", "/api/threads", "/api/otel", "/api/tab",
}

// Server wires the gin engine, the dispatcher, and the HTTP listener.
type Server struct {
	engine *gin.Engine
	server *http.Server

	cfg        *config.Config
	dispatcher *proxy.Dispatcher
	amp        *upstream.Amp
}

// NewServer builds the server and mounts all routes.
func NewServer(cfg *config.Config, core *proxy.Core, amp *upstream.Amp) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(corsMiddleware(cfg.Server))

	s := &Server{
		engine:     engine,
		cfg:        cfg,
		dispatcher: &proxy.Dispatcher{Core: core, Amp: amp},
		amp:        amp,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Hostname, cfg.Server.Port),
		Handler: engine,
	}
	return s
}

func (s *Server) setupRoutes() {
	d := s.dispatcher

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/chat/completions", d.HandlerFor(provider.DialectOpenAI))
		v1.POST("/messages", d.HandlerFor(provider.DialectAnthropic))
		v1.POST("/responses", d.HandlerFor(provider.DialectOpenAIResponses))
		v1.GET("/models", s.modelsHandler)
	}
	s.engine.POST("/v1beta/models/*action", d.HandlerFor(provider.DialectGemini))

	scoped := s.engine.Group("/api/provider/:provider")
	{
		scoped.POST("/v1/chat/completions", d.HandlerFor(provider.DialectOpenAI))
		scoped.POST("/v1/messages", d.HandlerFor(provider.DialectAnthropic))
		scoped.POST("/v1/responses", d.HandlerFor(provider.DialectOpenAIResponses))
		scoped.POST("/v1beta/models/*action", d.HandlerFor(provider.DialectGemini))
		scoped.GET("/v1/models", s.modelsHandler)
	}

	mgmt := s.amp.Management()
	for _, prefix := range managementPrefixes {
		s.engine.GET(prefix, mgmt)
		s.engine.POST(prefix, mgmt)
		s.engine.GET(prefix+"/*path", mgmt)
		s.engine.POST(prefix+"/*path", mgmt)
	}
	for _, path := range []string{"/threads.rss", "/news.rss", "/threads", "/docs", "/settings", "/auth"} {
		s.engine.GET(path, mgmt)
	}

	s.engine.GET("/health", s.healthHandler)
	s.engine.GET("/providers", s.providersHandler)
	s.engine.GET("/status", s.statusHandler)
}

// Start listens until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

func corsMiddleware(cfg config.ServerConfig) gin.HandlerFunc {
	allowAll, origins := cfg.CorsOrigins()
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && containsOrigin(origins, origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key, anthropic-version")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func containsOrigin(origins []string, origin string) bool {
	for _, o := range origins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
