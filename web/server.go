// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package web serves the browser facing HTTP API in front of the agents.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/go-a2a/sqlexcel/workflow"
)

// Processor runs the full query to workbook pipeline. [*workflow.Orchestrator]
// implements it.
type Processor interface {
	Process(ctx context.Context, question string, formatOptions map[string]any) *workflow.Result
}

// Config holds the configuration of a [Server].
type Config struct {
	// SQLAgent answers /api/query. Required.
	SQLAgent workflow.TaskSender
	// Workflow answers /api/workflow. Nil disables the route.
	Workflow Processor
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	// AllowOrigins restricts CORS. Empty allows every origin.
	AllowOrigins []string
	// Debug switches gin to debug mode.
	Debug bool

	Logger *slog.Logger
	// Now is the clock used for download file names.
	Now func() time.Time
}

// Server is the web front end.
type Server struct {
	engine   *gin.Engine
	sqlAgent workflow.TaskSender
	workflow Processor
	logger   *slog.Logger
	now      func() time.Time
}

// NewServer creates a new [Server].
func NewServer(cfg Config) (*Server, error) {
	if cfg.SQLAgent == nil {
		return nil, errors.New("sql agent is required")
	}
	s := &Server{
		sqlAgent: cfg.SQLAgent,
		workflow: cfg.Workflow,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(s.logger))

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowOrigins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition"}
	engine.Use(cors.New(corsConfig))

	s.engine = engine
	s.routes(cfg.MetricsHandler)
	return s, nil
}

func (s *Server) routes(metrics http.Handler) {
	s.engine.GET("/healthz", s.handleHealth)
	if metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics))
	}

	api := s.engine.Group("/api")
	api.Use(requireJSON())
	{
		api.POST("/query", s.handleQuery)
		api.POST("/workflow", s.handleWorkflow)
		api.POST("/download", s.handleDownload)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}
