package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dwsmith1983/checkrun/internal/provider/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkrun.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeConfig(t, `provider: redis
redis:
  addr: localhost:6379
  keyPrefix: "checkrun:"
server:
  addr: ":3000"
workflowDirs:
  - ./workflows
cache:
  backend: disk
  disk:
    dir: /var/cache/checkrun
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Provider)
	rc, ok := cfg.Redis.(*redis.Config)
	require.True(t, ok, "Redis config should be *redis.Config")
	assert.Equal(t, "localhost:6379", rc.Addr)
	assert.Equal(t, "checkrun:", rc.KeyPrefix)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Len(t, cfg.WorkflowDirs, 1)
	assert.Equal(t, "disk", cfg.Cache.Backend)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := writeConfig(t, "invalid: [yaml")

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidation_MissingProvider(t *testing.T) {
	dir := writeConfig(t, `workflowDirs: [./workflows]`)

	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "provider is required")
}

func TestValidation_UnknownProvider(t *testing.T) {
	dir := writeConfig(t, `provider: etcd
workflowDirs: [./workflows]
`)

	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestValidation_MissingRedisConfig(t *testing.T) {
	dir := writeConfig(t, `provider: redis
workflowDirs: [./workflows]
`)

	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis config is required")
}

func TestValidation_MissingDynamoTable(t *testing.T) {
	dir := writeConfig(t, `provider: dynamodb
dynamodb:
  region: us-east-1
workflowDirs: [./workflows]
`)

	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "dynamodb.tableName is required")
}

func TestValidation_MissingWorkflowDirs(t *testing.T) {
	dir := writeConfig(t, `provider: memory`)

	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "workflowDir")
}

func TestValidation_CacheBackend(t *testing.T) {
	dir := writeConfig(t, `provider: memory
workflowDirs: [./workflows]
cache:
  backend: s3
`)

	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cache.s3.bucket")
}

func TestValidation_IngestRequiresQueueURL(t *testing.T) {
	dir := writeConfig(t, `provider: memory
workflowDirs: [./workflows]
ingest:
  enabled: true
`)

	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.queueUrl")
}
