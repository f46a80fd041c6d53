package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dwsmith1983/checkrun/internal/cache"
	"github.com/dwsmith1983/checkrun/internal/logstore"
	"github.com/dwsmith1983/checkrun/internal/toolchain"
	"github.com/dwsmith1983/checkrun/internal/workflow"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

// Default directory cached by a `uses: cache` step without an explicit path.
const defaultCachePath = "target"

// Context carries per-job execution context. Each job gets its own workdir
// and env copy; jobs share no mutable state.
type Context struct {
	RunID    string
	Workflow string
	Job      string
	Workdir  string
	BaseEnv  map[string]string
}

// Runner executes a job's steps strictly sequentially: step i+1 never starts
// before step i's terminal status is known.
type Runner struct {
	provisioner toolchain.Provisioner
	cache       cache.Backend // nil disables caching
	logs        *logstore.Store
	executor    Executor
	logger      *slog.Logger
	audit       func(types.Event)
	saveGrace   time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor sets a custom step executor (useful for testing).
func WithExecutor(e Executor) Option {
	return func(r *Runner) { r.executor = e }
}

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithAuditSink sets a callback receiving audit events.
func WithAuditSink(fn func(types.Event)) Option {
	return func(r *Runner) { r.audit = fn }
}

// WithSaveGrace sets the post-phase window granted to cache saves after the
// job finishes (or times out).
func WithSaveGrace(d time.Duration) Option {
	return func(r *Runner) { r.saveGrace = d }
}

// New creates a Runner. backend may be nil to disable caching entirely; logs
// may be nil to skip log persistence.
func New(prov toolchain.Provisioner, backend cache.Backend, logs *logstore.Store, opts ...Option) *Runner {
	r := &Runner{
		provisioner: prov,
		cache:       backend,
		logs:        logs,
		executor:    ShellExecutor{},
		logger:      slog.Default(),
		saveGrace:   2 * time.Minute,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type pendingSave struct {
	key string
	dir string
}

type jobEnv struct {
	vars    map[string]string
	spec    types.ToolchainSpec // last provisioned spec, feeds cache fingerprints
	binDir  string
	pending []pendingSave
}

// Run executes the job against ctx's deadline. The returned state is always
// terminal: Passed, Failed, TimedOut, or Cancelled.
func (r *Runner) Run(ctx context.Context, job types.JobConfig, jc Context) types.JobState {
	state := types.JobState{
		Name:      job.Name,
		Status:    types.JobRunning,
		StartedAt: time.Now(),
	}

	env := &jobEnv{vars: make(map[string]string, len(jc.BaseEnv)+len(job.Env))}
	for k, v := range jc.BaseEnv {
		env.vars[k] = v
	}
	for k, v := range job.Env {
		env.vars[k] = v
	}

	fatal := false
	for _, step := range job.Steps {
		if fatal {
			state.Steps = append(state.Steps, types.StepResult{
				Name:   stepName(step),
				Status: types.StepSkipped,
			})
			continue
		}

		res := r.runStep(ctx, step, jc, env)
		state.Steps = append(state.Steps, res)

		if res.Status == types.StepFailed {
			category := types.FailureStep
			if step.Uses == workflow.ActionToolchain {
				category = types.FailureProvision
			}
			if cerr := ctx.Err(); cerr != nil {
				if errors.Is(cerr, context.DeadlineExceeded) {
					state.Status = types.JobTimedOut
					category = types.FailureTimeout
				} else {
					state.Status = types.JobCancelled
					category = types.FailureCancelled
				}
				fatal = true
			} else if !step.ContinueOnError || category == types.FailureProvision {
				// Provision failures are always fatal: later steps depend on
				// the toolchain the failed step was meant to supply.
				state.Status = types.JobFailed
				fatal = true
			}
			if fatal {
				state.FailureCategory = category
				state.FailureMessage = fmt.Sprintf("step %q failed with exit code %d", stepName(step), res.ExitCode)
			}
		}
	}

	if !fatal {
		state.Status = types.JobPassed
	}
	state.FinishedAt = time.Now()

	// Post phase: cache saves are best-effort on a fresh context so they can
	// finish even when the job deadline already fired. Failures never change
	// the job status.
	r.savePending(jc, env)

	return state
}

func (r *Runner) runStep(ctx context.Context, step types.StepConfig, jc Context, env *jobEnv) types.StepResult {
	start := time.Now()
	res := types.StepResult{Name: stepName(step), StartedAt: start}

	var output []byte
	switch step.Uses {
	case workflow.ActionToolchain:
		output = r.provisionStep(ctx, step, jc, env, &res)
	case workflow.ActionCache:
		output = r.cacheStep(ctx, step, jc, env, &res)
	default:
		output = r.commandStep(ctx, step, jc, env, &res)
	}
	res.Duration = time.Since(start)

	if r.logs != nil {
		path, err := r.logs.Save(jc.RunID, jc.Job, res.Name, output)
		if err != nil {
			r.logger.Error("failed to save step log", "run", jc.RunID, "step", res.Name, "error", err)
		} else {
			res.LogPath = path
		}
	}

	r.appendEvent(types.Event{
		Kind:      types.EventStepCompleted,
		Workflow:  jc.Workflow,
		RunID:     jc.RunID,
		Job:       jc.Job,
		Status:    string(res.Status),
		Message:   res.Name,
		Details:   map[string]interface{}{"exitCode": res.ExitCode},
		Timestamp: time.Now(),
	})
	return res
}

func (r *Runner) commandStep(ctx context.Context, step types.StepConfig, jc Context, env *jobEnv, res *types.StepResult) []byte {
	out, err := r.executor.Execute(ctx, step.Run, jc.Workdir, env.environ())
	res.ExitCode = out.ExitCode
	if err != nil {
		res.Status = types.StepFailed
		r.logger.Info("step failed", "run", jc.RunID, "step", res.Name, "exitCode", out.ExitCode, "error", err)
	} else {
		res.Status = types.StepPassed
	}
	return out.Output
}

func (r *Runner) provisionStep(ctx context.Context, step types.StepConfig, jc Context, env *jobEnv, res *types.StepResult) []byte {
	spec := types.ToolchainSpec{
		Channel:    step.With["channel"],
		Components: splitList(step.With["components"]),
	}

	tc, err := r.provisioner.Provision(ctx, spec)
	if err != nil {
		res.Status = types.StepFailed
		res.ExitCode = 1
		return []byte(err.Error() + "\n")
	}

	env.spec = spec
	env.binDir = tc.BinDir
	res.Status = types.StepPassed
	r.appendEvent(types.Event{
		Kind:      types.EventToolchainProvisioned,
		Workflow:  jc.Workflow,
		RunID:     jc.RunID,
		Job:       jc.Job,
		Message:   spec.Channel,
		Details:   map[string]interface{}{"components": spec.Components},
		Timestamp: time.Now(),
	})
	return []byte(fmt.Sprintf("toolchain %s ready (%s)\n", spec.Channel, strings.Join(spec.Components, ", ")))
}

func (r *Runner) cacheStep(ctx context.Context, step types.StepConfig, jc Context, env *jobEnv, res *types.StepResult) []byte {
	// With caching disabled the step is a no-op; a job's final status must be
	// identical with and without a cache backend.
	res.Status = types.StepPassed
	if r.cache == nil {
		return []byte("cache disabled\n")
	}

	key := step.With["key"]
	if key == "" {
		key = cache.Fingerprint(jc.Workdir, splitList(step.With["key-files"]), env.spec, step.With["prefix"])
	}
	dir := filepath.Join(jc.Workdir, step.With["path"])
	if step.With["path"] == "" {
		dir = filepath.Join(jc.Workdir, defaultCachePath)
	}

	payload, hit, err := r.cache.Restore(ctx, key)
	if err != nil {
		// Degrade to a cold run; never fail the job on cache trouble.
		r.logger.Warn("cache restore failed, continuing cold", "key", key, "error", err)
		hit = false
	}

	if hit {
		if err := cache.Unpack(dir, payload); err != nil {
			r.logger.Warn("cache payload unusable, continuing cold", "key", key, "error", err)
			hit = false
		}
	}

	if hit {
		r.appendEvent(types.Event{Kind: types.EventCacheRestored, RunID: jc.RunID, Job: jc.Job, Message: key, Timestamp: time.Now()})
		// Exact-key hit: saving again would write an identical entry.
		return []byte("cache restored: " + key + "\n")
	}

	r.appendEvent(types.Event{Kind: types.EventCacheMiss, RunID: jc.RunID, Job: jc.Job, Message: key, Timestamp: time.Now()})
	env.pending = append(env.pending, pendingSave{key: key, dir: dir})
	return []byte("cache miss: " + key + "\n")
}

func (r *Runner) savePending(jc Context, env *jobEnv) {
	if r.cache == nil || len(env.pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.saveGrace)
	defer cancel()

	for _, p := range env.pending {
		payload, err := cache.Pack(p.dir)
		if err != nil {
			r.logger.Warn("cache pack failed", "key", p.key, "error", err)
			continue
		}
		if err := r.cache.Save(ctx, p.key, payload); err != nil {
			r.logger.Warn("cache save failed", "key", p.key, "error", err)
			r.appendEvent(types.Event{Kind: types.EventCacheSaveFailed, RunID: jc.RunID, Message: p.key, Timestamp: time.Now()})
			continue
		}
		r.appendEvent(types.Event{Kind: types.EventCacheSaved, RunID: jc.RunID, Message: p.key, Timestamp: time.Now()})
	}
}

func (r *Runner) appendEvent(ev types.Event) {
	if r.audit != nil {
		r.audit(ev)
	}
}

// environ renders the env map as a sorted KEY=VALUE slice, with the
// provisioned toolchain's bin dir prepended to PATH.
func (e *jobEnv) environ() []string {
	vars := make(map[string]string, len(e.vars))
	for k, v := range e.vars {
		vars[k] = v
	}
	if e.binDir != "" {
		if path, ok := vars["PATH"]; ok && path != "" {
			vars["PATH"] = e.binDir + ":" + path
		} else {
			vars["PATH"] = e.binDir
		}
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+vars[k])
	}
	return out
}

func stepName(step types.StepConfig) string {
	if step.Name != "" {
		return step.Name
	}
	if step.Uses != "" {
		return step.Uses
	}
	return step.Run
}

// splitList parses comma- or whitespace-separated values from a `with` entry.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
