package types

import "time"

// ChangeEvent is an incoming repository event, produced externally. It is
// immutable and triggers at most one run evaluation.
type ChangeEvent struct {
	Kind         ChangeKind `json:"kind"`
	Repo         string     `json:"repo,omitempty"`
	Branch       string     `json:"branch"`
	Commit       string     `json:"commit,omitempty"`
	ChangedPaths []string   `json:"changedPaths"`
	// DeliveryID uniquely identifies the delivery from the event source and
	// is used for ingest deduplication.
	DeliveryID string `json:"deliveryId,omitempty"`
}

// StepResult records the outcome of one executed (or skipped) step.
type StepResult struct {
	Name      string        `json:"name"`
	Status    StepStatus    `json:"status"`
	ExitCode  int           `json:"exitCode"`
	LogPath   string        `json:"logPath,omitempty"`
	StartedAt time.Time     `json:"startedAt,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// JobState represents the lifecycle state of a single job within a run.
type JobState struct {
	Name            string          `json:"name"`
	Status          JobStatus       `json:"status"`
	Steps           []StepResult    `json:"steps,omitempty"`
	FailureCategory FailureCategory `json:"failureCategory,omitempty"`
	FailureMessage  string          `json:"failureMessage,omitempty"`
	StartedAt       time.Time       `json:"startedAt,omitempty"`
	FinishedAt      time.Time       `json:"finishedAt,omitempty"`
}

// Run is one execution of a workflow triggered by a single ChangeEvent.
type Run struct {
	RunID     string      `json:"runId"`
	Workflow  string      `json:"workflow"`
	Event     ChangeEvent `json:"event"`
	Status    RunStatus   `json:"status"`
	Jobs      []JobState  `json:"jobs"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Passed reports whether every job in the run reached PASSED.
func (r Run) Passed() bool {
	for _, j := range r.Jobs {
		if j.Status != JobPassed {
			return false
		}
	}
	return true
}

// Event is an append-only audit record. Trigger mismatches are recorded here
// even though they create no run.
type Event struct {
	Kind      EventKind              `json:"kind"`
	Workflow  string                 `json:"workflow,omitempty"`
	RunID     string                 `json:"runId,omitempty"`
	Job       string                 `json:"job,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Toolchain describes a provisioned toolchain available to later steps.
type Toolchain struct {
	Channel    string   `json:"channel"`
	Components []string `json:"components,omitempty"`
	// BinDir is prepended to PATH for steps that run after provisioning.
	BinDir string `json:"binDir,omitempty"`
}
