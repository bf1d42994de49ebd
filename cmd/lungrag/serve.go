package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matsen/lungrag/internal/metrics"
	"github.com/matsen/lungrag/internal/rag"
	"github.com/matsen/lungrag/internal/server"
)

var (
	servePort    int
	buildOnStart bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default: server.port)")
	serveCmd.Flags().BoolVar(&buildOnStart, "build-on-start", false, "Start a build in the background if no index has been saved")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the build and query API over HTTP",
	Long: `Serve the build and query API over HTTP.

Endpoints:
  POST /build     start a background rebuild (202, or 409 while building)
  POST /query     {"query": "..."} answer with sources
  POST /search    {"query": "...", "k": 4} nearest passages
  GET  /status    pipeline state and last build
  GET  /healthz   liveness
  GET  /readyz    ready once an index is loaded
  GET  /metrics   Prometheus metrics`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	m := metrics.New()
	a := newApp(ctx, cfg, rag.WithBuildObserver(m))
	defer a.Close()

	answerer := a.answerer(cfg, rag.WithQueryObserver(m))

	if buildOnStart && a.pipeline.State() == rag.StateUninitialized {
		if err := a.pipeline.StartBuild(ctx); err != nil {
			slog.Warn("initial build not started", "error", err)
		}
	}

	cors := server.DefaultCORSConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		cors.AllowOrigins = cfg.Server.CORSOrigins
	}
	srv := server.New(a.pipeline, answerer,
		server.WithMetrics(m),
		server.WithCORS(cors),
		server.WithBuildContext(ctx),
	)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		exitWithError(ExitError, "listening on port %d: %v", port, err)
	}

	slog.Info("starting lungrag server",
		"port", port,
		"corpus", cfg.CorpusDir,
		"index", cfg.IndexPath,
		"state", a.pipeline.State(),
		"config", loadedFromPath,
	)

	err = srv.Serve(ctx, ln, server.Timeouts{
		Read:     cfg.Server.ReadTimeout,
		Write:    cfg.Server.WriteTimeout,
		Shutdown: cfg.Server.ShutdownTimeout,
	})
	// The build context is the signal context, so an in-flight build is
	// already cancelled here.
	a.pipeline.Wait()
	if err != nil {
		exitWithError(ExitError, "server: %v", err)
	}
	slog.Info("lungrag server stopped")
	return nil
}
