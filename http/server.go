// Package http serves the widget API over gin: the checksum form, the
// settings panel, the theme switch, the wallet session status, manual cloud
// saves and the notification surface.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	ethchecksum "github.com/ethchecksum/ethchecksum"
	"github.com/ethchecksum/ethchecksum/metrics"
	"github.com/ethchecksum/ethchecksum/notify"
	"github.com/ethchecksum/ethchecksum/profile"
	"github.com/ethchecksum/ethchecksum/settings"
	"github.com/ethchecksum/ethchecksum/wallet"
)

// RequestIDHeader carries the id assigned to every request
const RequestIDHeader = "X-Request-ID"

// Config wires the server to the widget state it exposes
type Config struct {
	State   *settings.State
	Session *wallet.Session
	Toaster *notify.Toaster
	Login   *ethchecksum.Orchestrator
	Profile *profile.Synchronizer

	// Connector, when set, lets POST /api/wallet/connect connect a local
	// development wallet. Without it the endpoint answers 501.
	Connector ethchecksum.Connector
	// Account is the address Connector signs for
	Account string

	// Registry, when set, is served on /metrics
	Registry *prometheus.Registry

	// ActionTimeout bounds toast actions and saves started by a request.
	// Default: 2 minutes, long enough for a wallet signature prompt.
	ActionTimeout time.Duration

	Logger *slog.Logger
}

// Server is the widget API
type Server struct {
	engine *gin.Engine
	srv    *http.Server
	cfg    Config
	logger *slog.Logger
}

// NewServer builds the router. Login and Profile may be nil when cloud sync
// is off; their status then reads as idle.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 2 * time.Minute
	}
	if cfg.State == nil {
		cfg.State = settings.NewState()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{engine: r, cfg: cfg, logger: cfg.Logger}
	r.Use(s.requestID(), s.accessLog())
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.cfg.Registry != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(s.cfg.Registry)))
	}

	api := r.Group("/api")
	api.GET("/checksum", s.handleChecksum)

	api.GET("/settings", s.handleGetSettings)
	api.PATCH("/settings", s.handlePatchSettings)
	api.POST("/settings/reset", s.handleResetSettings)

	api.GET("/theme", s.handleGetTheme)
	api.PUT("/theme", s.handlePutTheme)
	api.POST("/theme/toggle", s.handleToggleTheme)

	api.GET("/session", s.handleSession)
	api.POST("/wallet/connect", s.handleConnect)
	api.POST("/wallet/disconnect", s.handleDisconnect)

	api.POST("/profile/save", s.handleSaveProfile)

	api.GET("/toasts", s.handleListToasts)
	api.POST("/toasts/:id/click", s.handleClickToast)
	api.POST("/toasts/:id/close", s.handleCloseToast)
}

// Handler returns the http.Handler serving the API
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("widget api listening", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener, waiting for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// ============================================================================
// Middleware
// ============================================================================

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", c.GetString("request_id"))
	}
}

// actionContext detaches work started by a request from the request's
// lifetime: a wallet prompt outlives the HTTP round trip that clicked it
func (s *Server) actionContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.ActionTimeout)
}

func errorJSON(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
