package types

// TriggerRule filters events of one kind by branch and changed-path patterns.
// An empty Paths list means "match all paths"; an empty Branches list means
// "match all branches". Patterns support `**` globs.
type TriggerRule struct {
	Branches []string `yaml:"branches,omitempty" json:"branches,omitempty"`
	Paths    []string `yaml:"paths,omitempty" json:"paths,omitempty"`
}

// ToolchainSpec names a toolchain channel plus optional components, as
// consumed by the built-in `toolchain` step action.
type ToolchainSpec struct {
	Channel    string   `yaml:"channel" json:"channel"`
	Components []string `yaml:"components,omitempty" json:"components,omitempty"`
}

// StepConfig is one step inside a job: either a shell command (`run`) or a
// built-in action (`uses`) with a parameter mapping (`with`).
type StepConfig struct {
	Name            string            `yaml:"name,omitempty" json:"name,omitempty"`
	Run             string            `yaml:"run,omitempty" json:"run,omitempty"`
	Uses            string            `yaml:"uses,omitempty" json:"uses,omitempty"`
	With            map[string]string `yaml:"with,omitempty" json:"with,omitempty"`
	ContinueOnError bool              `yaml:"continue-on-error,omitempty" json:"continueOnError,omitempty"`
}

// JobConfig is an independently scheduled unit of step execution. Jobs within
// one run share no mutable state.
type JobConfig struct {
	Name           string            `yaml:"name" json:"name"`
	TimeoutMinutes int               `yaml:"timeout-minutes,omitempty" json:"timeoutMinutes,omitempty"`
	Env            map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Steps          []StepConfig      `yaml:"steps" json:"steps"`
}

// WorkflowConfig is a declarative run-gate definition: trigger rules per event
// kind, orchestration strategy, and an ordered list of jobs.
type WorkflowConfig struct {
	Name string                     `yaml:"name" json:"name"`
	On   map[ChangeKind]TriggerRule `yaml:"on" json:"on"`
	// FailFast controls whether an early job failure cancels sibling jobs.
	// Nil defaults to true, matching the hosting platform's default.
	FailFast *bool       `yaml:"fail-fast,omitempty" json:"failFast,omitempty"`
	Jobs     []JobConfig `yaml:"jobs" json:"jobs"`
}

// FailFastEnabled resolves the fail-fast strategy flag.
func (w WorkflowConfig) FailFastEnabled() bool {
	if w.FailFast == nil {
		return true
	}
	return *w.FailFast
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	APIKey         string `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
	MaxRequestBody int64  `yaml:"maxRequestBody,omitempty" json:"maxRequestBody,omitempty"`
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	// Backend is one of "disk", "redis", "s3", or "none".
	Backend string            `yaml:"backend"`
	Disk    *DiskCacheConfig  `yaml:"disk,omitempty"`
	Redis   *RedisCacheConfig `yaml:"redis,omitempty"`
	S3      *S3CacheConfig    `yaml:"s3,omitempty"`
}

// DiskCacheConfig configures the local-disk cache backend.
type DiskCacheConfig struct {
	Dir string `yaml:"dir"`
}

// RedisCacheConfig configures the Redis cache backend.
type RedisCacheConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
	TTL       string `yaml:"ttl,omitempty"` // default "168h" (7 days)
}

// S3CacheConfig configures the S3-compatible object store cache backend.
type S3CacheConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"accessKey,omitempty"`
	SecretKey string `yaml:"secretKey,omitempty"`
	UseSSL    bool   `yaml:"useSSL,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
}

// OrchestratorConfig holds engine-level orchestration settings.
type OrchestratorConfig struct {
	// MaxParallelJobs bounds concurrent jobs per run; 0 means unbounded.
	MaxParallelJobs int `yaml:"maxParallelJobs,omitempty"`
	// DefaultJobTimeout applies to jobs without timeout-minutes, e.g. "30m".
	DefaultJobTimeout string `yaml:"defaultJobTimeout,omitempty"`
	// Workspace is the directory under which per-job workdirs are created.
	Workspace string `yaml:"workspace,omitempty"`
}

// IngestConfig configures the SQS change-event source.
type IngestConfig struct {
	Enabled     bool   `yaml:"enabled"`
	QueueURL    string `yaml:"queueUrl"`
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"` // for local SQS emulators
	WaitSeconds int32  `yaml:"waitSeconds,omitempty"`
	MaxMessages int32  `yaml:"maxMessages,omitempty"`
}

// ArchiverConfig configures the background Postgres archiver.
type ArchiverConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"` // e.g. "5m"
	DSN      string `yaml:"dsn"`
}

// ObservabilityConfig configures OTLP metric and trace export.
type ObservabilityConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint,omitempty"` // OTLP gRPC endpoint
	ServiceName string `yaml:"serviceName,omitempty"`
}

// ProjectConfig represents the top-level checkrun.yaml configuration.
// Provider-specific sections are decoded into concrete types by a second
// unmarshal pass in internal/config.
type ProjectConfig struct {
	Provider      string               `yaml:"provider"`
	Redis         interface{}          `yaml:"redis,omitempty"`
	DynamoDB      interface{}          `yaml:"dynamodb,omitempty"`
	Server        *ServerConfig        `yaml:"server,omitempty"`
	Cache         *CacheConfig         `yaml:"cache,omitempty"`
	Orchestrator  *OrchestratorConfig  `yaml:"orchestrator,omitempty"`
	WorkflowDirs  []string             `yaml:"workflowDirs"`
	LogDir        string               `yaml:"logDir,omitempty"`
	Ingest        *IngestConfig        `yaml:"ingest,omitempty"`
	Archiver      *ArchiverConfig      `yaml:"archiver,omitempty"`
	Observability *ObservabilityConfig `yaml:"observability,omitempty"`
}
