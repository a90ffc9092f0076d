package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vk/sweeptrack/internal/ctxlog"
	"github.com/vk/sweeptrack/internal/tracking"
)

// ShutdownTimeout bounds how long in-flight requests may take once the
// server is asked to stop.
const ShutdownTimeout = 5 * time.Second

// Server serves the tracking API for one store.
type Server struct {
	store  tracking.Store
	logger *slog.Logger
	engine *gin.Engine
}

// New builds the router for store. Requests are logged at debug level.
func New(store tracking.Store, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{store: store, logger: logger, engine: gin.New()}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api")
	{
		experiments := api.Group("/experiments")
		{
			experiments.GET("", s.listExperiments)
			experiments.GET("/:id", s.getExperiment)
			experiments.GET("/:id/runs", s.listRuns)
		}

		runs := api.Group("/runs")
		{
			runs.GET("/:id", s.getRun)
			runs.GET("/:id/metrics/:key", s.getMetricHistory)
			runs.GET("/:id/artifacts", s.listArtifacts)
		}
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Request served.",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote_addr", c.ClientIP(),
		)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := ctxlog.FromContext(ctx)
	httpServer := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Tracking server starting.", "address", fmt.Sprintf("http://%s", ln.Addr()))
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("tracking server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()

	logger.Info("Shutting down tracking server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Tracking server shutdown failed.", "error", err)
		return err
	}
	logger.Debug("Tracking server shut down gracefully.")
	return nil
}
