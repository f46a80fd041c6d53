package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

func TestValidJobTransitions(t *testing.T) {
	tests := []struct {
		from  types.JobStatus
		to    types.JobStatus
		valid bool
	}{
		{types.JobPending, types.JobRunning, true},
		{types.JobPending, types.JobCancelled, true},
		{types.JobPending, types.JobPassed, false},
		{types.JobRunning, types.JobPassed, true},
		{types.JobRunning, types.JobFailed, true},
		{types.JobRunning, types.JobTimedOut, true},
		{types.JobRunning, types.JobCancelled, true},
		{types.JobRunning, types.JobPending, false},
		{types.JobPassed, types.JobFailed, false},
		{types.JobFailed, types.JobRunning, false},
		{types.JobTimedOut, types.JobPending, false},
		{types.JobCancelled, types.JobRunning, false},
	}

	for _, tt := range tests {
		got := CanTransitionJob(tt.from, tt.to)
		assert.Equal(t, tt.valid, got, "%s -> %s", tt.from, tt.to)
		err := TransitionJob(tt.from, tt.to)
		if tt.valid {
			assert.NoError(t, err)
		} else {
			assert.Error(t, err)
		}
	}
}

func TestValidRunTransitions(t *testing.T) {
	assert.True(t, CanTransitionRun(types.RunPending, types.RunRunning))
	assert.True(t, CanTransitionRun(types.RunRunning, types.RunPassed))
	assert.True(t, CanTransitionRun(types.RunRunning, types.RunFailed))
	assert.False(t, CanTransitionRun(types.RunPending, types.RunPassed))
	assert.False(t, CanTransitionRun(types.RunPassed, types.RunRunning))
	assert.False(t, CanTransitionRun(types.RunFailed, types.RunPending))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminalJob(types.JobPassed))
	assert.True(t, IsTerminalJob(types.JobFailed))
	assert.True(t, IsTerminalJob(types.JobTimedOut))
	assert.True(t, IsTerminalJob(types.JobCancelled))
	assert.False(t, IsTerminalJob(types.JobPending))
	assert.False(t, IsTerminalJob(types.JobRunning))

	assert.True(t, IsTerminalRun(types.RunPassed))
	assert.True(t, IsTerminalRun(types.RunFailed))
	assert.False(t, IsTerminalRun(types.RunRunning))
}

func TestAggregateRun(t *testing.T) {
	tests := []struct {
		name string
		jobs []types.JobState
		want types.RunStatus
	}{
		{"all passed", []types.JobState{{Status: types.JobPassed}, {Status: types.JobPassed}}, types.RunPassed},
		{"one failed", []types.JobState{{Status: types.JobPassed}, {Status: types.JobFailed}}, types.RunFailed},
		{"timed out counts as failed", []types.JobState{{Status: types.JobTimedOut}}, types.RunFailed},
		{"cancelled counts as failed", []types.JobState{{Status: types.JobPassed}, {Status: types.JobCancelled}}, types.RunFailed},
		{"empty passes", nil, types.RunPassed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateRun(tt.jobs))
		})
	}
}
