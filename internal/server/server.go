// Package server provides the HTTP API for memoryd.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/oracle"
	"github.com/fyrsmithlabs/memoryd/internal/snapshotstore"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes the memory hierarchy over HTTP.
type Server struct {
	echo      *echo.Echo
	hierarchy *memory.Hierarchy
	snapshots *snapshotstore.Store
	logger    *zap.Logger
	metrics   *Metrics
	config    *Config
}

// NewServer creates a new HTTP server.
func NewServer(hierarchy *memory.Hierarchy, snapshots *snapshotstore.Store, logger *zap.Logger, cfg *Config) (*Server, error) {
	if hierarchy == nil {
		return nil, fmt.Errorf("hierarchy cannot be nil")
	}
	if snapshots == nil {
		return nil, fmt.Errorf("snapshot store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9190,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewMetrics(logger)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			metrics.Record(c.Request().Context(), c.Request().Method, c.Path(), c.Response().Status, duration)

			return err
		}
	})

	s := &Server{
		echo:      e,
		hierarchy: hierarchy,
		snapshots: snapshots,
		logger:    logger,
		metrics:   metrics,
		config:    cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ingest", s.handleIngest)
	v1.GET("/retrieve", s.handleRetrieve)
	v1.GET("/stats", s.handleStats)
	v1.POST("/snapshot", s.handleSnapshot)
	v1.POST("/restore", s.handleRestore)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleIngest appends one conversation turn and runs the consolidation
// pipeline synchronously.
func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ingest request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := s.hierarchy.Ingest(c.Request().Context(), req.Role, req.Text)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, IngestResponse{Stats: s.hierarchy.Stats()})
	case errors.Is(err, memory.ErrInvalidInput), errors.Is(err, memory.ErrInvalidRole):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, oracle.ErrUnavailable):
		// Committed state is intact; logs or the rollup stay queued for
		// the next ingest.
		s.logger.Warn("ingest degraded, oracle unavailable", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("ingest failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// handleRetrieve returns ranked articles for a query.
func (s *Server) handleRetrieve(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q query parameter is required")
	}

	k := 0
	if raw := c.QueryParam("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "k must be a positive integer")
		}
		k = parsed
	}

	articles, err := s.hierarchy.Retrieve(c.Request().Context(), query, k)
	if err != nil {
		if errors.Is(err, memory.ErrInvalidInput) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("retrieve failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := RetrieveResponse{Articles: make([]ArticleView, 0, len(articles))}
	for _, a := range articles {
		resp.Articles = append(resp.Articles, ArticleView{
			ID:        a.ID,
			Title:     a.Title,
			Body:      a.Body,
			UpdatedAt: a.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// handleStats returns collection sizes.
func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hierarchy.Stats())
}

// handleSnapshot persists the current state.
func (s *Server) handleSnapshot(c echo.Context) error {
	snap := s.hierarchy.Snapshot()
	if err := s.snapshots.Save(snap); err != nil {
		s.logger.Error("snapshot save failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, SnapshotResponse{
		Path:     s.snapshots.Path(),
		Articles: len(snap.Articles),
		Rollups:  len(snap.Rollups),
	})
}

// handleRestore loads the persisted snapshot into the hierarchy.
func (s *Server) handleRestore(c echo.Context) error {
	snap, err := s.snapshots.Load()
	if err != nil {
		if errors.Is(err, snapshotstore.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no snapshot saved")
		}
		s.logger.Error("snapshot load failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := s.hierarchy.Restore(c.Request().Context(), snap); err != nil {
		s.logger.Error("restore failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, s.hierarchy.Stats())
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
