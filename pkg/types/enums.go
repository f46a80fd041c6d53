// Package types defines the public domain types for the checkrun quality-gate engine.
package types

// ChangeKind classifies an incoming repository event.
type ChangeKind string

// ChangeKind values enumerate the repository events that can gate a run.
const (
	ChangePush        ChangeKind = "push"
	ChangePullRequest ChangeKind = "pull_request"
)

// RunStatus represents the lifecycle state of a run.
type RunStatus string

// RunStatus values represent the lifecycle states of a run.
const (
	RunPending RunStatus = "PENDING"
	RunRunning RunStatus = "RUNNING"
	RunPassed  RunStatus = "PASSED"
	RunFailed  RunStatus = "FAILED"
)

// JobStatus represents the lifecycle state of a single job within a run.
type JobStatus string

// JobStatus values represent the lifecycle states of a job.
const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobPassed    JobStatus = "PASSED"
	JobFailed    JobStatus = "FAILED"
	JobTimedOut  JobStatus = "TIMED_OUT"
	JobCancelled JobStatus = "CANCELLED"
)

// StepStatus represents the outcome of a single step.
type StepStatus string

// StepStatus values enumerate per-step outcomes. Steps after a fatal failure
// are recorded as SKIPPED, never executed.
const (
	StepPassed  StepStatus = "PASSED"
	StepFailed  StepStatus = "FAILED"
	StepSkipped StepStatus = "SKIPPED"
)

// FailureCategory classifies why a job reached a non-passing terminal state.
type FailureCategory string

const (
	FailureProvision FailureCategory = "PROVISION"
	FailureStep      FailureCategory = "STEP"
	FailureTimeout   FailureCategory = "TIMEOUT"
	FailureCancelled FailureCategory = "CANCELLED"
)

// EventKind classifies the type of audit event.
type EventKind string

// EventKind values enumerate the categories of recorded events.
const (
	EventReceived             EventKind = "EVENT_RECEIVED"
	EventSkipped              EventKind = "EVENT_SKIPPED"
	EventRunCreated           EventKind = "RUN_CREATED"
	EventRunStateChanged      EventKind = "RUN_STATE_CHANGED"
	EventJobStarted           EventKind = "JOB_STARTED"
	EventJobCompleted         EventKind = "JOB_COMPLETED"
	EventStepCompleted        EventKind = "STEP_COMPLETED"
	EventToolchainProvisioned EventKind = "TOOLCHAIN_PROVISIONED"
	EventCacheRestored        EventKind = "CACHE_RESTORED"
	EventCacheMiss            EventKind = "CACHE_MISS"
	EventCacheSaved           EventKind = "CACHE_SAVED"
	EventCacheSaveFailed      EventKind = "CACHE_SAVE_FAILED"
	EventRunArchived          EventKind = "RUN_ARCHIVED"
)
