// Package server constructs, runs and stops the pairchat HTTP service with
// helpers that apply sensible production defaults.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer listens until the server is shut down. A clean shutdown is
// not reported as an error.
func StartServer(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "listening on %s", server.Addr)
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Info().Msg("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown")
	}

	log.Info().Msg("HTTP server shutdown completed")
	return nil
}

// Run applies cfg, serves until ctx is cancelled or the listener fails, then
// stops the HTTP server before the hub.
func Run(ctx context.Context, cfg *Config) error {
	SetConfig(cfg)
	active := currentConfig()

	hub := NewHub()
	httpServer := CreateServer(active.Port, SetupRoutes(hub))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		return StartServer(httpServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		httpErr := ShutdownServer(httpServer, active.ShutdownTimeout)
		if err := hub.Shutdown(active.ShutdownTimeout); err != nil {
			log.Warn().Err(err).Msg("hub shutdown incomplete")
		}
		return httpErr
	})

	return g.Wait()
}
