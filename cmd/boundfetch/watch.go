package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/boundfetch"
	"github.com/jpalmerr/boundfetch/config"
	"github.com/jpalmerr/boundfetch/dashboard"
	"github.com/jpalmerr/boundfetch/internal/metrics"
	"github.com/jpalmerr/boundfetch/internal/otelx"
	"github.com/jpalmerr/boundfetch/internal/prof"
	"github.com/jpalmerr/boundfetch/internal/server"
	"github.com/jpalmerr/boundfetch/internal/store"
	"github.com/jpalmerr/boundfetch/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func newWatchCmd(g *globalFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-digest configured resources on a schedule",
		Long: `Digest every configured resource on the watch.schedule cron schedule and
serve the results over HTTP:

  GET /             dashboard
  GET /api/digests  JSON snapshot (?status=changed to filter)
  GET /api/sse      Server-Sent Events of record updates
  GET /metrics      Prometheus metrics
  GET /-/healthy    liveness probe

The first cycle runs immediately. The command runs until interrupted
(Ctrl+C) or it receives SIGTERM.

Example:
  boundfetch watch -c boundfetch.yaml
  boundfetch watch -c boundfetch.yaml --listen 127.0.0.1:9191`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, g, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "ops server address (default from config, or :9090)")
	return cmd
}

func runWatch(cmd *cobra.Command, g *globalFlags, listen string) error {
	if g.configPath == "" {
		return errors.New("watch requires --config")
	}
	logger, err := newLogger(cmd.ErrOrStderr(), g.logLevel)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return err
	}
	if listen == "" {
		listen = cfg.Watch.Listen
	}

	resources, err := config.BuildResources(cfg)
	if err != nil {
		return fmt.Errorf("failed to build resources: %w", err)
	}
	if len(resources) == 0 {
		return errors.New("no resources configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := otelx.Init(ctx, otelx.Options{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Service:     "boundfetch",
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	reg := metrics.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	stopProfiling, err := prof.Start(prof.Options{
		Enabled:       cfg.Profiling.Enabled,
		AppName:       cfg.Profiling.AppName,
		ServerAddress: cfg.Profiling.ServerAddress,
		TenantID:      cfg.Profiling.TenantID,
		Tags:          cfg.Profiling.Tags,
	}, m, logger)
	if err != nil {
		return fmt.Errorf("failed to start profiling: %w", err)
	}
	defer stopProfiling()

	f, err := newFetcher(cfg, logger,
		boundfetch.WithRegisterer(reg),
		boundfetch.WithTracerProvider(tp),
	)
	if err != nil {
		return err
	}
	defer f.Close()

	st := store.NewMemoryStore()

	w, err := watcher.New(f, resources, st, watcher.Options{
		Schedule: cfg.Watch.Schedule,
		Budget:   cfg.Concurrency,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	srv := server.NewServer(st, server.Options{
		Addr:    listen,
		Assets:  dashboard.Assets,
		Title:   cfg.Title,
		Metrics: metrics.Handler(reg),
		Logger:  logger,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	logger.Info("watch started",
		"resources", len(resources),
		"schedule", cfg.Watch.Schedule,
		"concurrency", cfg.Concurrency,
		"addr", srv.Addr(),
	)

	w.Start(ctx)
	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out",
			"timeout", shutdownTimeout.String(),
			"action", "forcing exit",
		)
	}
	return nil
}
