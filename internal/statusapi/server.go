// Package statusapi exposes the aggregate transfer state over HTTP so
// presentation layers can poll it.
package statusapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meigma/xferwatch/core"
)

var ginMode sync.Once

// Source provides the aggregate state.
type Source interface {
	Snapshot() core.Snapshot
}

// Server serves the status API.
type Server struct {
	src    Source
	logger *slog.Logger
	engine *gin.Engine
}

// New creates a Server reading from src.
func New(src Source, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ginMode.Do(func() { gin.SetMode(gin.ReleaseMode) })

	s := &Server{src: src, logger: logger, engine: gin.New()}
	s.engine.Use(gin.Recovery(), s.logRequests())

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api")
	{
		api.GET("/status", s.status)
		api.GET("/done", s.done)
		api.GET("/result", s.result)
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.src.Snapshot())
}

func (s *Server) done(c *gin.Context) {
	snap := s.src.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"all_done":        snap.AllDone,
		"total_matched":   snap.TotalMatched,
		"total_completed": snap.TotalCompleted,
	})
}

func (s *Server) result(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing key"})
		return
	}
	text, ok := s.src.Snapshot().Results[key]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no completed transfer %q", key)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "result": text})
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("status api request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("status api listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown status api: %w", err)
	}
	return nil
}
