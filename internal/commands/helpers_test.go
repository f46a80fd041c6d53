package commands

import (
	"log/slog"
	"testing"

	"github.com/dwsmith1983/checkrun/internal/provider/redis"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

func TestNewProvider_Memory(t *testing.T) {
	cfg := &types.ProjectConfig{Provider: "memory"}
	p, err := newProvider(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestNewProvider_Redis(t *testing.T) {
	cfg := &types.ProjectConfig{
		Provider: "redis",
		Redis:    &redis.Config{Addr: "localhost:6379"},
	}
	p, err := newProvider(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestNewProvider_RedisMissingConfig(t *testing.T) {
	cfg := &types.ProjectConfig{Provider: "redis"}
	_, err := newProvider(cfg)
	if err == nil {
		t.Fatal("expected error when redis config is absent")
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	cfg := &types.ProjectConfig{Provider: "etcd"}
	_, err := newProvider(cfg)
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewCacheBackend_Disabled(t *testing.T) {
	b, err := newCacheBackend(nil, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b != nil {
		t.Fatal("expected nil backend when cache config is absent")
	}

	b, err = newCacheBackend(&types.CacheConfig{Backend: "none"}, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b != nil {
		t.Fatal("expected nil backend when cache backend is none")
	}
}

func TestNewCacheBackend_Disk(t *testing.T) {
	cfg := &types.CacheConfig{
		Backend: "disk",
		Disk:    &types.DiskCacheConfig{Dir: t.TempDir()},
	}
	b, err := newCacheBackend(cfg, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b == nil {
		t.Fatal("expected non-nil backend")
	}
}

func TestNewCacheBackend_Unknown(t *testing.T) {
	cfg := &types.CacheConfig{Backend: "memcached"}
	_, err := newCacheBackend(cfg, slog.Default())
	if err == nil {
		t.Fatal("expected error for unknown cache backend")
	}
}

func TestLoadRegistry(t *testing.T) {
	cfg := &types.ProjectConfig{WorkflowDirs: []string{t.TempDir()}}
	reg, err := loadRegistry(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(reg.List()); got != 0 {
		t.Fatalf("expected empty registry, got %d workflows", got)
	}
}
