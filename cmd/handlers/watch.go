package handlers

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"articleforge/internal/config"
	"articleforge/internal/logger"
	"articleforge/internal/scheduler"
	"articleforge/internal/server"

	"github.com/spf13/cobra"
)

// NewWatchCmd creates the long-running scheduler command
func NewWatchCmd() *cobra.Command {
	var interval string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Enhance pending articles on a schedule",
		Long: `Run a batch immediately and then every pipeline.interval until interrupted.

A status server listens on server.addr with:
  GET  /health      store and cache checks
  GET  /metrics     Prometheus metrics
  GET  /api/status  last batch outcome
  POST /api/score   score posted HTML
  POST /api/runs    start a batch now (requires server.admin_token)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), interval)
		},
	}

	cmd.Flags().StringVar(&interval, "interval", "", "Override pipeline.interval (e.g. 5m)")
	return cmd
}

func runWatch(ctx context.Context, intervalFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Get()
	interval := config.Duration(cfg.Pipeline.Interval, 10*time.Minute)
	if intervalFlag != "" {
		d, err := time.ParseDuration(intervalFlag)
		if err != nil {
			return fmt.Errorf("invalid interval: %w", err)
		}
		interval = d
	}

	articles, err := openPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer articles.Close()

	c, err := buildComponents(ctx, cfg, articles)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := server.New(c.pipeline, server.Options{
		Addr:       cfg.Server.Addr,
		AdminToken: cfg.Server.AdminToken,
		BatchSize:  cfg.Pipeline.BatchSize,
		Gatherer:   c.registry,
		Checks: map[string]server.HealthCheck{
			"store": articles.Ping,
		},
	})

	if cfg.Server.Addr != "" {
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("Status server stopped", err)
				stop()
			}
		}()
	}

	ticker := scheduler.NewTicker(interval)
	ticker.Start(ctx, func(ctx context.Context, tick time.Time) {
		stats, err := srv.RunBatch(ctx)
		switch {
		case errors.Is(err, server.ErrBatchRunning):
			logger.Info("Skipping scheduled batch, previous batch still running")
		case err == nil:
			printBatchStats(stats)
		}
	})
	logger.Info("Watching for pending articles", "interval", interval.String(), "addr", cfg.Server.Addr)

	<-ctx.Done()
	fmt.Println("\n🛑 Shutting down...")
	ticker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cfg.Server.Addr != "" {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
