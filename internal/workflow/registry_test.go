package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

const gateYAML = `name: quality
on:
  push:
    branches: [main]
    paths: ["**.rs", "Cargo.toml", "Cargo.lock"]
  pull_request:
    branches: [main]
    paths: ["**.rs", "Cargo.toml", "Cargo.lock"]
fail-fast: false
jobs:
  - name: fmt
    timeout-minutes: 30
    steps:
      - name: install toolchain
        uses: toolchain
        with:
          channel: stable
          components: rustfmt
      - uses: cache
        with:
          key-files: Cargo.lock
      - run: cargo fmt --all -- --check
  - name: clippy
    timeout-minutes: 30
    steps:
      - uses: toolchain
        with:
          channel: stable
          components: clippy
      - run: cargo clippy --all-targets -- -D warnings
`

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quality.yaml"), []byte(gateYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	r := NewRegistry()
	require.NoError(t, r.LoadDir(dir))

	wf, err := r.Get("quality")
	require.NoError(t, err)
	assert.False(t, wf.FailFastEnabled())
	assert.Len(t, wf.Jobs, 2)
	assert.Equal(t, "fmt", wf.Jobs[0].Name)
	assert.Equal(t, 30, wf.Jobs[0].TimeoutMinutes)

	rule, ok := wf.On[types.ChangePush]
	require.True(t, ok)
	assert.Equal(t, []string{"main"}, rule.Branches)
	assert.Contains(t, rule.Paths, "**.rs")

	assert.Equal(t, ActionToolchain, wf.Jobs[0].Steps[0].Uses)
	assert.Equal(t, "stable", wf.Jobs[0].Steps[0].With["channel"])
	assert.Len(t, r.List(), 1)
}

func TestLoadDirMissing(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.LoadDir("/nonexistent"))
}

func TestGetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	assert.Error(t, err)
}

func TestFailFastDefaultsTrue(t *testing.T) {
	wf := types.WorkflowConfig{}
	assert.True(t, wf.FailFastEnabled())
}

func TestValidate(t *testing.T) {
	valid := func() *types.WorkflowConfig {
		return &types.WorkflowConfig{
			Name: "quality",
			On:   map[types.ChangeKind]types.TriggerRule{types.ChangePush: {Branches: []string{"main"}}},
			Jobs: []types.JobConfig{
				{Name: "fmt", Steps: []types.StepConfig{{Run: "cargo fmt --check"}}},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*types.WorkflowConfig)
		wantErr string
	}{
		{"valid", func(w *types.WorkflowConfig) {}, ""},
		{"missing name", func(w *types.WorkflowConfig) { w.Name = "" }, "name is required"},
		{"no triggers", func(w *types.WorkflowConfig) { w.On = nil }, "trigger rule"},
		{"unknown kind", func(w *types.WorkflowConfig) {
			w.On["cron"] = types.TriggerRule{}
		}, "unknown event kind"},
		{"no jobs", func(w *types.WorkflowConfig) { w.Jobs = nil }, "at least one job"},
		{"duplicate job", func(w *types.WorkflowConfig) {
			w.Jobs = append(w.Jobs, w.Jobs[0])
		}, "duplicate job"},
		{"negative timeout", func(w *types.WorkflowConfig) {
			w.Jobs[0].TimeoutMinutes = -1
		}, "timeout-minutes"},
		{"no steps", func(w *types.WorkflowConfig) { w.Jobs[0].Steps = nil }, "at least one step"},
		{"run and uses", func(w *types.WorkflowConfig) {
			w.Jobs[0].Steps[0].Uses = ActionCache
		}, "mutually exclusive"},
		{"neither run nor uses", func(w *types.WorkflowConfig) {
			w.Jobs[0].Steps[0].Run = ""
		}, "either run or uses"},
		{"unknown action", func(w *types.WorkflowConfig) {
			w.Jobs[0].Steps[0] = types.StepConfig{Uses: "checkout"}
		}, "unknown action"},
		{"toolchain without channel", func(w *types.WorkflowConfig) {
			w.Jobs[0].Steps[0] = types.StepConfig{Uses: ActionToolchain}
		}, "with.channel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := valid()
			tt.mutate(wf)
			err := Validate(wf)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
