package report

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dmaas/ivcrush/pkg/logger"
)

// Server serves the read-only reporting endpoints.
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
}

// NewServer wraps the router in an HTTP server on the given port.
func NewServer(port string, router http.Handler, log *logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: log,
	}
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting report server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start report server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down report server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown report server: %w", err)
	}
	return nil
}
