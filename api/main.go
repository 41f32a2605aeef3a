package api

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// RunServer starts the API server and shuts it down gracefully when ctx is
// canceled or the process receives SIGINT or SIGTERM.
func RunServer(ctx context.Context, server *Server, shutdownTimeout time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Channel to handle server errors
	errCh := make(chan error, 1)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal or error
	select {
	case <-ctx.Done():
		server.logger.Info("shutting down server")
	case err, ok := <-errCh:
		if ok {
			server.logger.Error("server error", zap.Error(err))
			return err
		}
	}

	// Create a deadline for shutdown
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		server.logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	server.logger.Info("server gracefully stopped")
	return nil
}
