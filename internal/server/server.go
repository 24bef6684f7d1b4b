// Package server provides the HTTP API for devmind.
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
	"go.uber.org/zap"

	"github.com/yaverlabs/devmind/internal/config"
	"github.com/yaverlabs/devmind/internal/graph"
	"github.com/yaverlabs/devmind/internal/impact"
	"github.com/yaverlabs/devmind/internal/logging"
	"github.com/yaverlabs/devmind/internal/services"
)

// Server exposes the analysis services over HTTP.
type Server struct {
	echo     *echo.Echo
	registry services.Registry
	logger   *logging.Logger
	cfg      config.ServerConfig
}

// New creates the HTTP server with routes and middleware registered.
func New(registry services.Registry, logger *logging.Logger, cfg config.ServerConfig) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("service registry required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		registry: registry,
		logger:   logger,
		cfg:      cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/analyze", s.handleAnalyze)
	v1.POST("/query", s.handleQuery)
	v1.POST("/impact", s.handleImpact)
	v1.GET("/graph/callers", s.handleCallers)
	v1.GET("/graph/cycles", s.handleCycles)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	components := map[string]string{}
	status := "ok"

	if vector := s.registry.VectorStore(); vector != nil {
		if err := vector.Healthy(ctx); err != nil {
			components["vectorstore"] = err.Error()
			status = "degraded"
		} else {
			components["vectorstore"] = "ok"
		}
	}
	if s.registry.Graph() != nil {
		components["graph"] = "ok"
	}
	if s.registry.History() != nil {
		components["history"] = "ok"
	}

	return c.JSON(http.StatusOK, HealthResponse{Status: status, Components: components})
}

// AnalyzeRequest is the request body for POST /api/v1/analyze.
type AnalyzeRequest struct {
	Project string `json:"project"`
	Path    string `json:"path"`
	Force   bool   `json:"force"`
}

func (s *Server) handleAnalyze(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Project == "" || req.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project and path fields are required")
	}

	report, err := s.registry.Pipeline().Analyze(c.Request().Context(), services.AnalyzeOptions{
		Project: req.Project,
		Path:    req.Path,
		Force:   req.Force,
	})
	if err != nil {
		s.logger.Warn(c.Request().Context(), "analyze failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "analysis failed")
	}
	return c.JSON(http.StatusOK, report)
}

// QueryRequest is the request body for POST /api/v1/query.
type QueryRequest struct {
	Project string `json:"project"`
	Query   string `json:"query"`
	TopK    int    `json:"top_k"`
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Project == "" || req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project and query fields are required")
	}

	fused, err := s.registry.Query().Execute(c.Request().Context(), req.Project, req.Query, req.TopK)
	if err != nil {
		s.logger.Warn(c.Request().Context(), "query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
	}
	return c.JSON(http.StatusOK, fused)
}

// ImpactRequest is the request body for POST /api/v1/impact.
type ImpactRequest struct {
	Project    string `json:"project"`
	Function   string `json:"function"`
	ChangeType string `json:"change_type"`
}

func (s *Server) handleImpact(c echo.Context) error {
	var req ImpactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Project == "" || req.Function == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project and function fields are required")
	}
	change, err := impact.ParseChangeType(req.ChangeType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "change_type must be logic, signature, or rename")
	}

	result, err := s.registry.Impact().Analyze(c.Request().Context(), req.Project, req.Function, change)
	if err != nil {
		s.logger.Warn(c.Request().Context(), "impact analysis failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "impact analysis failed")
	}
	return c.JSON(http.StatusOK, result)
}

// CallersResponse is the response body for GET /api/v1/graph/callers.
type CallersResponse struct {
	Function string         `json:"function"`
	Depth    int            `json:"depth"`
	Callers  []graph.Caller `json:"callers"`
}

func (s *Server) handleCallers(c echo.Context) error {
	project := c.QueryParam("project")
	function := c.QueryParam("function")
	if project == "" || function == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project and function parameters are required")
	}
	depth := 1
	if raw := c.QueryParam("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "depth must be a positive integer")
		}
		depth = parsed
	}

	ctx := c.Request().Context()
	node, err := s.registry.Graph().FindFunction(ctx, project, function)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "function not found")
		}
		s.logger.Warn(ctx, "caller lookup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "caller lookup failed")
	}

	callers, err := s.registry.Graph().TransitiveCallers(ctx, project, node.ID, depth)
	if err != nil {
		s.logger.Warn(ctx, "caller lookup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "caller lookup failed")
	}
	if callers == nil {
		callers = []graph.Caller{}
	}
	return c.JSON(http.StatusOK, CallersResponse{
		Function: node.ID,
		Depth:    depth,
		Callers:  callers,
	})
}

// CyclesResponse is the response body for GET /api/v1/graph/cycles.
type CyclesResponse struct {
	Cycles []graph.Cycle `json:"cycles"`
}

func (s *Server) handleCycles(c echo.Context) error {
	project := c.QueryParam("project")
	if project == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project parameter is required")
	}
	maxLen := 10
	if raw := c.QueryParam("max_len"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2 {
			return echo.NewHTTPError(http.StatusBadRequest, "max_len must be at least 2")
		}
		maxLen = parsed
	}

	ctx := c.Request().Context()
	cycles, err := s.registry.Graph().CircularDependencies(ctx, project, maxLen)
	if err != nil {
		s.logger.Warn(ctx, "cycle detection failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "cycle detection failed")
	}
	if cycles == nil {
		cycles = []graph.Cycle{}
	}
	return c.JSON(http.StatusOK, CyclesResponse{Cycles: cycles})
}

// Start begins serving on the configured port and blocks until the
// listener stops.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info(ctx, "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
