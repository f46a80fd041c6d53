package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/checkrun/internal/archiver"
	"github.com/dwsmith1983/checkrun/internal/config"
	"github.com/dwsmith1983/checkrun/internal/ingest"
	"github.com/dwsmith1983/checkrun/internal/observability"
	pgstore "github.com/dwsmith1983/checkrun/internal/provider/postgres"
	"github.com/dwsmith1983/checkrun/internal/server"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the checkrun HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()
	ctx := context.Background()

	// Telemetry
	tel, err := observability.Init(ctx, cfg.Observability)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	// Provider
	prov, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	if err := prov.Start(ctx); err != nil {
		return fmt.Errorf("starting provider: %w", err)
	}

	// Orchestrator
	orch, reg, logs, err := buildOrchestrator(cfg, prov, tel, logger)
	if err != nil {
		return err
	}

	// Server
	srvCfg := types.ServerConfig{Addr: ":3000"}
	if cfg.Server != nil {
		srvCfg = *cfg.Server
		if srvCfg.Addr == "" {
			srvCfg.Addr = ":3000"
		}
	}
	srv := server.New(srvCfg, orch, prov, reg, logs)

	// Ingest poller
	var poller *ingest.Poller
	if cfg.Ingest != nil && cfg.Ingest.Enabled {
		handler := func(ctx context.Context, event types.ChangeEvent) error {
			_, err := orch.HandleEvent(ctx, event)
			return err
		}
		poller, err = ingest.New(*cfg.Ingest, prov, handler, logger)
		if err != nil {
			return fmt.Errorf("creating ingest poller: %w", err)
		}
		poller.Start(ctx)
	}

	// Archiver
	var arc *archiver.Archiver
	if cfg.Archiver != nil && cfg.Archiver.Enabled {
		pg, err := pgstore.New(ctx, cfg.Archiver.DSN)
		if err != nil {
			return fmt.Errorf("connecting to Postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return fmt.Errorf("migrating Postgres: %w", err)
		}
		defer pg.Close()
		interval := 5 * time.Minute
		if cfg.Archiver.Interval != "" {
			if d, err := time.ParseDuration(cfg.Archiver.Interval); err == nil && d > 0 {
				interval = d
			}
		}
		arc = archiver.New(prov, pg, interval, logger)
		arc.Start(ctx)
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if arc != nil {
			arc.Stop(shutdownCtx)
		}
		if poller != nil {
			poller.Stop(shutdownCtx)
		}
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		_ = prov.Stop(shutdownCtx)
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
		color.Green("Server stopped gracefully")
		return nil
	}
}
