// Package config handles loading and validation of checkrun.yaml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	ddbprov "github.com/dwsmith1983/checkrun/internal/provider/dynamodb"
	"github.com/dwsmith1983/checkrun/internal/provider/redis"
	"github.com/dwsmith1983/checkrun/pkg/types"
	"gopkg.in/yaml.v3"
)

// providerConfigs is a helper struct used for a second YAML unmarshal pass
// to decode provider-specific config sections into their concrete types.
type providerConfigs struct {
	Redis    *redis.Config   `yaml:"redis,omitempty"`
	DynamoDB *ddbprov.Config `yaml:"dynamodb,omitempty"`
}

// Load reads and parses checkrun.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, "checkrun.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Second pass: decode provider-specific sections into concrete types.
	var raw providerConfigs
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing provider config: %w", err)
	}
	if raw.Redis != nil {
		cfg.Redis = raw.Redis
	}
	if raw.DynamoDB != nil {
		cfg.DynamoDB = raw.DynamoDB
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *types.ProjectConfig) error {
	switch cfg.Provider {
	case "":
		return fmt.Errorf("provider is required")
	case "memory":
	case "redis":
		rc, _ := cfg.Redis.(*redis.Config)
		if rc == nil {
			return fmt.Errorf("redis config is required when provider is redis")
		}
		if rc.Addr == "" {
			return fmt.Errorf("redis.addr is required")
		}
	case "dynamodb":
		dc, _ := cfg.DynamoDB.(*ddbprov.Config)
		if dc == nil {
			return fmt.Errorf("dynamodb config is required when provider is dynamodb")
		}
		if dc.TableName == "" {
			return fmt.Errorf("dynamodb.tableName is required")
		}
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if len(cfg.WorkflowDirs) == 0 {
		return fmt.Errorf("at least one workflowDir is required")
	}
	if cfg.Cache != nil {
		switch cfg.Cache.Backend {
		case "", "none":
		case "disk":
			if cfg.Cache.Disk == nil || cfg.Cache.Disk.Dir == "" {
				return fmt.Errorf("cache.disk.dir is required when cache backend is disk")
			}
		case "redis":
			if cfg.Cache.Redis == nil || cfg.Cache.Redis.Addr == "" {
				return fmt.Errorf("cache.redis.addr is required when cache backend is redis")
			}
		case "s3":
			if cfg.Cache.S3 == nil || cfg.Cache.S3.Bucket == "" {
				return fmt.Errorf("cache.s3.bucket is required when cache backend is s3")
			}
		default:
			return fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
		}
	}
	if cfg.Ingest != nil && cfg.Ingest.Enabled && cfg.Ingest.QueueURL == "" {
		return fmt.Errorf("ingest.queueUrl is required when ingest is enabled")
	}
	if cfg.Archiver != nil && cfg.Archiver.Enabled && cfg.Archiver.DSN == "" {
		return fmt.Errorf("archiver.dsn is required when archiver is enabled")
	}
	return nil
}
