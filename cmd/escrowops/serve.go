package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"escrowops/internal/platform/httpserver"
	"escrowops/internal/platform/logger"
	"escrowops/internal/platform/otel"
)

var version = "dev"

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.New(cfg.Server.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := otel.Setup(ctx, cfg.OTel)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		defer func() { _ = shutdownTracing(context.Background()) }()

		a, err := build(ctx, cfg, log, !skipMigrations)
		if err != nil {
			return err
		}
		defer a.close()
		a.metrics.SetBuildInfo(version)

		if err := a.bootstrap(ctx, cfg); err != nil {
			return err
		}

		srv := httpserver.New(cfg.Server.Addr, a.router)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info("escrowops listening", "addr", cfg.Server.Addr, "environment", cfg.Server.Environment)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		for _, worker := range a.workers {
			g.Go(func() error { return worker(gctx) })
		}
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations at start")
}
