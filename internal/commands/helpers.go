// Package commands implements the CLI subcommands for the checkrun binary.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dwsmith1983/checkrun/internal/cache"
	"github.com/dwsmith1983/checkrun/internal/logstore"
	"github.com/dwsmith1983/checkrun/internal/observability"
	"github.com/dwsmith1983/checkrun/internal/orchestrator"
	"github.com/dwsmith1983/checkrun/internal/provider"
	ddbprov "github.com/dwsmith1983/checkrun/internal/provider/dynamodb"
	"github.com/dwsmith1983/checkrun/internal/provider/memory"
	"github.com/dwsmith1983/checkrun/internal/provider/redis"
	"github.com/dwsmith1983/checkrun/internal/runner"
	"github.com/dwsmith1983/checkrun/internal/toolchain"
	"github.com/dwsmith1983/checkrun/internal/workflow"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

// newProvider creates the configured storage provider.
func newProvider(cfg *types.ProjectConfig) (provider.Provider, error) {
	switch cfg.Provider {
	case "memory":
		return memory.New(), nil
	case "redis":
		rc, ok := cfg.Redis.(*redis.Config)
		if !ok || rc == nil {
			return nil, fmt.Errorf("redis config is required when provider is redis")
		}
		return redis.New(rc)
	case "dynamodb":
		dc, ok := cfg.DynamoDB.(*ddbprov.Config)
		if !ok || dc == nil {
			return nil, fmt.Errorf("dynamodb config is required when provider is dynamodb")
		}
		return ddbprov.New(dc)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// newCacheBackend creates the configured cache backend, wrapped in a circuit
// breaker so backend outages degrade to cache misses. Returns nil when caching
// is disabled.
func newCacheBackend(cfg *types.CacheConfig, logger *slog.Logger) (cache.Backend, error) {
	if cfg == nil {
		return nil, nil
	}
	var inner cache.Backend
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "disk":
		inner = cache.NewDisk(cfg.Disk.Dir)
	case "redis":
		inner = cache.NewRedis(cfg.Redis)
	case "s3":
		s3, err := cache.NewS3(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("creating s3 cache: %w", err)
		}
		inner = s3
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
	return cache.NewBreakerBackend(inner, logger), nil
}

// loadRegistry loads workflow definitions from every configured directory.
func loadRegistry(cfg *types.ProjectConfig) (*workflow.Registry, error) {
	reg := workflow.NewRegistry()
	for _, dir := range cfg.WorkflowDirs {
		if err := reg.LoadDir(dir); err != nil {
			return nil, fmt.Errorf("loading workflows from %s: %w", dir, err)
		}
	}
	return reg, nil
}

// buildOrchestrator assembles the full execution stack from configuration:
// workflow registry, cache backend, log store, step runner, and orchestrator.
func buildOrchestrator(cfg *types.ProjectConfig, prov provider.Provider, tel *observability.Telemetry, logger *slog.Logger) (*orchestrator.Orchestrator, *workflow.Registry, *logstore.Store, error) {
	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	backend, err := newCacheBackend(cfg.Cache, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating cache backend: %w", err)
	}

	workspace := filepath.Join(os.TempDir(), "checkrun")
	if cfg.Orchestrator != nil && cfg.Orchestrator.Workspace != "" {
		workspace = cfg.Orchestrator.Workspace
	}

	logDir := cfg.LogDir
	if logDir == "" {
		logDir = filepath.Join(workspace, "logs")
	}
	logs := logstore.New(logDir)

	rustup := toolchain.NewRustup(filepath.Join(workspace, "toolchains"))
	sink := tel.EventSink()
	audit := func(ev types.Event) {
		if err := prov.AppendEvent(context.Background(), ev); err != nil {
			logger.Warn("appending audit event", "kind", ev.Kind, "error", err)
		}
		sink(ev)
	}
	run := runner.New(rustup, backend, logs,
		runner.WithLogger(logger),
		runner.WithAuditSink(audit),
	)

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithTelemetry(tel),
		orchestrator.WithWorkspace(workspace),
	}
	if cfg.Orchestrator != nil {
		if cfg.Orchestrator.MaxParallelJobs > 0 {
			opts = append(opts, orchestrator.WithMaxParallelJobs(cfg.Orchestrator.MaxParallelJobs))
		}
		if cfg.Orchestrator.DefaultJobTimeout != "" {
			if d, err := time.ParseDuration(cfg.Orchestrator.DefaultJobTimeout); err == nil && d > 0 {
				opts = append(opts, orchestrator.WithDefaultJobTimeout(d))
			}
		}
	}

	orch := orchestrator.New(prov, reg, run, opts...)
	return orch, reg, logs, nil
}
