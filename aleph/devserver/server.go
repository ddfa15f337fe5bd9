// Package devserver serves the subset of the Aleph aggregate API the
// widget uses, backed by an in-memory store. Posted messages are verified
// before they are applied, so a session against it exercises the same
// signing path as a real API node.
package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/ethchecksum/ethchecksum/aleph"
	"github.com/ethchecksum/ethchecksum/checksum"
	"github.com/ethchecksum/ethchecksum/metrics"
)

const rateLimiterExpiry = 5 * time.Minute

// Config configures the server
type Config struct {
	// WriteRatePerSecond limits message submissions per client IP (0 disables)
	WriteRatePerSecond float64
	WriteBurst         int

	// Registry for request metrics (optional)
	Registry *prometheus.Registry

	Logger *slog.Logger
}

// Server is the local aggregate API
type Server struct {
	echo   *echo.Echo
	store  *aleph.InMemoryStore
	logger *slog.Logger

	messagesPosted *prometheus.CounterVec
}

// NewServer creates a server over store
func NewServer(store *aleph.InMemoryStore, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		echo:   e,
		store:  store,
		logger: logger,
		messagesPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregated_messages_total",
			Help: "Aggregate messages received, by result",
		}, []string{"result"}),
	}

	if cfg.Registry != nil {
		cfg.Registry.MustRegister(s.messagesPosted)
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(cfg.Registry)))
	}

	var writeLimit []echo.MiddlewareFunc
	if cfg.WriteRatePerSecond > 0 {
		writeLimit = append(writeLimit, newRateLimiter(cfg.WriteRatePerSecond, cfg.WriteBurst))
	}

	e.GET("/health", s.handleHealth)
	e.GET("/api/v0/aggregates/:file", s.handleGetAggregate)
	e.GET("/api/v0/messages.json", s.handleListMessages)
	e.POST("/api/v0/messages", s.handlePostMessage, writeLimit...)

	return s
}

// Handler exposes the server as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.logger.Info("aggregate server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ============================================================================
// Handlers
// ============================================================================

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetAggregate(c echo.Context) error {
	address := strings.TrimSuffix(c.Param("file"), ".json")
	addr, err := checksum.Normalize(address)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "invalid address"})
	}

	var keys []string
	if raw := c.QueryParam("keys"); raw != "" {
		keys = strings.Split(raw, ",")
	}

	data, ok := s.store.Aggregate(addr, keys...)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Aggregate not found"})
	}
	return c.JSON(http.StatusOK, aleph.AggregateResponse{Address: addr, Data: data})
}

func (s *Server) handleListMessages(c echo.Context) error {
	addr, err := checksum.Normalize(c.QueryParam("addresses"))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "invalid address"})
	}
	messages := s.store.Messages(addr)
	if messages == nil {
		messages = []*aleph.Message{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages":   messages,
		"pagination": 1,
		"total":      len(messages),
	})
}

func (s *Server) handlePostMessage(c echo.Context) error {
	var req aleph.PostRequest
	if err := c.Bind(&req); err != nil || req.Message == nil {
		s.messagesPosted.WithLabelValues("malformed").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := s.store.Apply(req.Message); err != nil {
		s.messagesPosted.WithLabelValues("rejected").Inc()
		s.logger.Warn("message rejected", "sender", req.Message.Sender, "error", err)
		status := http.StatusUnprocessableEntity
		if errors.Is(err, aleph.ErrInvalidSignature) {
			status = http.StatusForbidden
		}
		return c.JSON(status, map[string]string{"error": err.Error()})
	}

	s.messagesPosted.WithLabelValues("processed").Inc()
	s.logger.Info("message processed", "sender", req.Message.Sender, "item_hash", req.Message.ItemHash)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"publication_status": map[string]string{"status": "success"},
		"message_status":     "processed",
		"request_id":         uuid.NewString(),
	})
}

func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
			})
		},
	})
}
