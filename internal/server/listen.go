package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout is used when Timeouts.Shutdown is unset.
const DefaultShutdownTimeout = 15 * time.Second

// Timeouts bound the HTTP server's reads, writes and graceful shutdown.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Shutdown time.Duration
}

// Serve serves the handler on ln until ctx is cancelled, then shuts down
// gracefully within t.Shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener, t Timeouts) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  t.Read,
		WriteTimeout: t.Write,
	}

	if t.Shutdown <= 0 {
		t.Shutdown = DefaultShutdownTimeout
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.Shutdown)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
