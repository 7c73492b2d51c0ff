// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-matching/internal/application/service"
	"github.com/garyjia/invoice-matching/internal/infrastructure/report"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config      ServerConfig
	httpServer  *http.Server
	router      *gin.Engine
	matching    service.MatchingService
	procurement service.ProcurementService
	writer      *report.Writer
	logger      Logger
	handlers    *Handlers
}

// NewServer creates a new HTTP server with the given services. Zero
// config fields take their DefaultServerConfig values.
func NewServer(
	config ServerConfig,
	matching service.MatchingService,
	procurement service.ProcurementService,
	writer *report.Writer,
	logger Logger,
) *Server {
	// Set gin mode based on environment
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	defaults := DefaultServerConfig()
	if config.Host == "" {
		config.Host = defaults.Host
	}
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	server := &Server{
		config:      config,
		router:      router,
		matching:    matching,
		procurement: procurement,
		writer:      writer,
		logger:      logger,
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup routes
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.router.Use(gin.Recovery())

	// Logging middleware
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		// Process request
		c.Next()
		// Log request details
		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []interface{}{
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		}
		if userID := c.GetHeader(HeaderUserID); userID != "" {
			fields = append(fields, "user_id", userID)
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("HTTP request", fields...)
			return
		}
		s.logger.Info("HTTP request", fields...)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.matching, s.procurement, s.writer, s.logger)
	s.handlers = handlers

	// Health check
	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api")
	{
		matches := api.Group("/invoice-matching")
		matches.GET("", handlers.ListMatches)
		matches.GET("/stats", handlers.Stats)
		matches.GET("/export", handlers.ExportMatches)
		matches.GET("/:id", handlers.GetMatch)
		matches.GET("/:id/history", handlers.MatchHistory)
		matches.POST("", handlers.CreateMatch)
		matches.POST("/items/:itemId/resolve", handlers.ResolveItem)
		matches.POST("/:id/evaluate", handlers.EvaluateMatch)
		matches.POST("/:id/approve", handlers.Approve)
		matches.POST("/:id/flag", handlers.Flag)
		matches.POST("/:id/paid", handlers.MarkPaid)

		api.POST("/purchase-orders", handlers.CreatePurchaseOrder)
		api.GET("/purchase-orders/:id", handlers.GetPurchaseOrder)
		api.POST("/goods-receipts", handlers.CreateGoodsReceipt)
		api.GET("/goods-receipts/:id", handlers.GetGoodsReceipt)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// SetHealthChecker makes GET /health report fn's result
func (s *Server) SetHealthChecker(fn HealthChecker) {
	s.handlers.health = fn
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
