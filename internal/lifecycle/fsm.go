// Package lifecycle implements the run and job state machines.
package lifecycle

import (
	"fmt"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

// Transition table: from -> allowed tos.
var validRunTransitions = map[types.RunStatus][]types.RunStatus{
	types.RunPending: {types.RunRunning},
	types.RunRunning: {types.RunPassed, types.RunFailed},
	types.RunPassed:  {},
	types.RunFailed:  {},
}

var validJobTransitions = map[types.JobStatus][]types.JobStatus{
	types.JobPending:   {types.JobRunning, types.JobCancelled},
	types.JobRunning:   {types.JobPassed, types.JobFailed, types.JobTimedOut, types.JobCancelled},
	types.JobPassed:    {},
	types.JobFailed:    {},
	types.JobTimedOut:  {},
	types.JobCancelled: {},
}

// CanTransitionRun checks if transitioning from one run status to another is valid.
func CanTransitionRun(from, to types.RunStatus) bool {
	for _, s := range validRunTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionRun validates a run status transition, returning an error if invalid.
func TransitionRun(from, to types.RunStatus) error {
	if !CanTransitionRun(from, to) {
		return fmt.Errorf("invalid run transition from %s to %s", from, to)
	}
	return nil
}

// CanTransitionJob checks if transitioning from one job status to another is valid.
func CanTransitionJob(from, to types.JobStatus) bool {
	for _, s := range validJobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionJob validates a job status transition, returning an error if invalid.
func TransitionJob(from, to types.JobStatus) error {
	if !CanTransitionJob(from, to) {
		return fmt.Errorf("invalid job transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalRun returns true if the run status is final.
func IsTerminalRun(status types.RunStatus) bool {
	return status == types.RunPassed || status == types.RunFailed
}

// IsTerminalJob returns true if the job status is final.
func IsTerminalJob(status types.JobStatus) bool {
	switch status {
	case types.JobPassed, types.JobFailed, types.JobTimedOut, types.JobCancelled:
		return true
	}
	return false
}

// AggregateRun derives the overall run status from terminal job states: the
// run passes iff every job passed.
func AggregateRun(jobs []types.JobState) types.RunStatus {
	for _, j := range jobs {
		if j.Status != types.JobPassed {
			return types.RunFailed
		}
	}
	return types.RunPassed
}
