// Package orchestrator dispatches change events to workflow runs and drives
// the parallel execution of a run's jobs.
package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/checkrun/internal/lifecycle"
	"github.com/dwsmith1983/checkrun/internal/observability"
	"github.com/dwsmith1983/checkrun/internal/provider"
	"github.com/dwsmith1983/checkrun/internal/runner"
	"github.com/dwsmith1983/checkrun/internal/trigger"
	"github.com/dwsmith1983/checkrun/internal/workflow"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

// defaultJobTimeout applies to jobs without an explicit timeout-minutes.
const defaultJobTimeout = 30 * time.Minute

// Orchestrator evaluates triggers and executes matched workflows. Jobs within
// a run execute in parallel up to maxParallel; a run finishes only after every
// dispatched job reaches a terminal status.
type Orchestrator struct {
	provider    provider.Provider
	registry    *workflow.Registry
	runner      *runner.Runner
	logger      *slog.Logger
	telemetry   *observability.Telemetry
	maxParallel int
	jobTimeout  time.Duration
	workspace   string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTelemetry attaches run and job counters.
func WithTelemetry(t *observability.Telemetry) Option {
	return func(o *Orchestrator) { o.telemetry = t }
}

// WithMaxParallelJobs bounds concurrent jobs per run; 0 means unbounded.
func WithMaxParallelJobs(n int) Option {
	return func(o *Orchestrator) { o.maxParallel = n }
}

// WithDefaultJobTimeout overrides the timeout for jobs without timeout-minutes.
func WithDefaultJobTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.jobTimeout = d
		}
	}
}

// WithWorkspace sets the directory under which per-job workdirs are created.
func WithWorkspace(dir string) Option {
	return func(o *Orchestrator) { o.workspace = dir }
}

// New creates an Orchestrator.
func New(p provider.Provider, reg *workflow.Registry, run *runner.Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:   p,
		registry:   reg,
		runner:     run,
		logger:     slog.Default(),
		jobTimeout: defaultJobTimeout,
		workspace:  filepath.Join(os.TempDir(), "checkrun"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleEvent matches the event against every registered workflow and executes
// the matching ones. Mismatches produce no run but are recorded in the audit
// log. Returned runs are terminal.
func (o *Orchestrator) HandleEvent(ctx context.Context, event types.ChangeEvent) ([]types.Run, error) {
	o.appendEvent(ctx, types.Event{
		Kind:    types.EventReceived,
		Message: string(event.Kind) + " on " + event.Branch,
		Details: map[string]interface{}{
			"repo":         event.Repo,
			"commit":       event.Commit,
			"changedPaths": len(event.ChangedPaths),
			"deliveryId":   event.DeliveryID,
		},
		Timestamp: time.Now(),
	})

	workflows := o.registry.List()
	sort.Slice(workflows, func(i, j int) bool { return workflows[i].Name < workflows[j].Name })

	var runs []types.Run
	for _, wf := range workflows {
		decision := trigger.Evaluate(event, wf.On)
		if !decision.Matched {
			o.logger.Debug("event skipped", "workflow", wf.Name, "reason", decision.Reason)
			o.appendEvent(ctx, types.Event{
				Kind:      types.EventSkipped,
				Workflow:  wf.Name,
				Message:   decision.Reason,
				Timestamp: time.Now(),
			})
			continue
		}
		runs = append(runs, o.Execute(ctx, wf, event))
	}
	return runs, nil
}

// Execute runs one workflow against one event and returns the terminal run.
// Storage failures degrade to log warnings: an unreachable provider must not
// stop the gate from producing a verdict.
func (o *Orchestrator) Execute(ctx context.Context, wf *types.WorkflowConfig, event types.ChangeEvent) types.Run {
	run := types.Run{
		RunID:     ulid.Make().String(),
		Workflow:  wf.Name,
		Event:     event,
		Status:    types.RunPending,
		Jobs:      make([]types.JobState, len(wf.Jobs)),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	for i, job := range wf.Jobs {
		run.Jobs[i] = types.JobState{Name: job.Name, Status: types.JobPending}
	}

	o.putRun(ctx, run)
	o.appendEvent(ctx, types.Event{
		Kind:      types.EventRunCreated,
		Workflow:  wf.Name,
		RunID:     run.RunID,
		Status:    string(run.Status),
		Timestamp: time.Now(),
	})

	o.transition(ctx, &run, types.RunRunning)

	spanCtx, span := o.telemetry.StartSpan(ctx, "run "+wf.Name)
	o.executeJobs(spanCtx, wf, &run)
	span.End()

	final := lifecycle.AggregateRun(run.Jobs)
	o.transition(ctx, &run, final)
	o.telemetry.RecordRun(ctx, wf.Name, final)

	o.logger.Info("run finished",
		"run", run.RunID,
		"workflow", wf.Name,
		"status", run.Status,
		"jobs", len(run.Jobs))
	return run
}

// executeJobs drives all jobs of the run to terminal status. With fail-fast
// enabled, the first non-passing job cancels the shared run context; jobs not
// yet started then record CANCELLED without executing any steps.
func (o *Orchestrator) executeJobs(ctx context.Context, wf *types.WorkflowConfig, run *types.Run) {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	failFast := wf.FailFastEnabled()
	var mu sync.Mutex

	g := new(errgroup.Group)
	if o.maxParallel > 0 {
		g.SetLimit(o.maxParallel)
	}

	baseEnv := environMap()

	for i := range wf.Jobs {
		job := wf.Jobs[i]
		g.Go(func() error {
			if runCtx.Err() != nil {
				// Cancelled by a sibling before this job was scheduled.
				o.finishJob(ctx, wf.Name, run, i, &mu, types.JobState{
					Name:            job.Name,
					Status:          types.JobCancelled,
					FailureCategory: types.FailureCancelled,
					FailureMessage:  "cancelled before start",
				})
				return nil
			}

			timeout := o.jobTimeout
			if job.TimeoutMinutes > 0 {
				timeout = time.Duration(job.TimeoutMinutes) * time.Minute
			}
			jobCtx, cancel := context.WithTimeout(runCtx, timeout)
			defer cancel()

			workdir := filepath.Join(o.workspace, run.RunID, sanitizeName(job.Name))
			if err := os.MkdirAll(workdir, 0o755); err != nil {
				o.logger.Error("failed to create job workdir", "run", run.RunID, "job", job.Name, "error", err)
				o.finishJob(ctx, wf.Name, run, i, &mu, types.JobState{
					Name:            job.Name,
					Status:          types.JobFailed,
					FailureCategory: types.FailureProvision,
					FailureMessage:  "creating workdir: " + err.Error(),
				})
				if failFast {
					cancelRun()
				}
				return nil
			}

			o.appendEvent(ctx, types.Event{
				Kind:      types.EventJobStarted,
				Workflow:  wf.Name,
				RunID:     run.RunID,
				Job:       job.Name,
				Timestamp: time.Now(),
			})

			state := o.runner.Run(jobCtx, job, runner.Context{
				RunID:    run.RunID,
				Workflow: wf.Name,
				Job:      job.Name,
				Workdir:  workdir,
				BaseEnv:  baseEnv,
			})
			o.finishJob(ctx, wf.Name, run, i, &mu, state)

			if state.Status != types.JobPassed && failFast {
				cancelRun()
			}
			return nil
		})
	}

	_ = g.Wait()
}

// finishJob records a terminal job status: audit event, counter, and a fresh
// run snapshot in storage. The mutex guards concurrent writers within one run.
func (o *Orchestrator) finishJob(ctx context.Context, workflowName string, run *types.Run, i int, mu *sync.Mutex, state types.JobState) {
	mu.Lock()
	run.Jobs[i] = state
	run.UpdatedAt = time.Now()
	copied := *run
	copied.Jobs = append([]types.JobState(nil), run.Jobs...)
	mu.Unlock()

	o.appendEvent(ctx, types.Event{
		Kind:      types.EventJobCompleted,
		Workflow:  workflowName,
		RunID:     run.RunID,
		Job:       state.Name,
		Status:    string(state.Status),
		Message:   state.FailureMessage,
		Timestamp: time.Now(),
	})
	o.telemetry.RecordJob(ctx, workflowName, state.Status)
	o.putRun(ctx, copied)
}

func (o *Orchestrator) transition(ctx context.Context, run *types.Run, to types.RunStatus) {
	if err := lifecycle.TransitionRun(run.Status, to); err != nil {
		o.logger.Error("invalid run transition", "run", run.RunID, "from", run.Status, "to", to, "error", err)
		return
	}
	run.Status = to
	o.snapshot(ctx, run)
	o.appendEvent(ctx, types.Event{
		Kind:      types.EventRunStateChanged,
		Workflow:  run.Workflow,
		RunID:     run.RunID,
		Status:    string(to),
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) snapshot(ctx context.Context, run *types.Run) {
	run.UpdatedAt = time.Now()
	copied := *run
	copied.Jobs = append([]types.JobState(nil), run.Jobs...)
	o.putRun(ctx, copied)
}

func (o *Orchestrator) putRun(ctx context.Context, run types.Run) {
	if o.provider == nil {
		return
	}
	if err := o.provider.PutRun(ctx, run); err != nil {
		o.logger.Warn("failed to store run", "run", run.RunID, "error", err)
	}
}

func (o *Orchestrator) appendEvent(ctx context.Context, ev types.Event) {
	if o.provider == nil {
		return
	}
	if err := o.provider.AppendEvent(ctx, ev); err != nil {
		o.logger.Warn("failed to append event", "kind", ev.Kind, "error", err)
	}
}

// AuditSink returns a callback suitable for the runner's audit option,
// forwarding step-level events into the provider's event log.
func (o *Orchestrator) AuditSink() func(types.Event) {
	return func(ev types.Event) {
		o.appendEvent(context.Background(), ev)
	}
}

func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[k] = v
	}
	return env
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
