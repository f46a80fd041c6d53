// Package runner executes the ordered steps of a job with fail-stop semantics.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// Exit code reported when a step is killed by timeout or cancellation.
const killedExitCode = 124

// StepOutput is the captured result of one executed command.
type StepOutput struct {
	ExitCode int
	Output   []byte
}

// Executor runs a single step command. Injectable for testing.
type Executor interface {
	Execute(ctx context.Context, command, dir string, env []string) (StepOutput, error)
}

// ShellExecutor runs commands through `sh -c` with the step placed in its own
// process group so an entire pipeline of children dies on timeout.
type ShellExecutor struct{}

// Execute implements Executor. Stdout and stderr are captured interleaved,
// preserving the order the step emitted them.
func (ShellExecutor) Execute(ctx context.Context, command, dir string, env []string) (StepOutput, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid signals the whole process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	result := StepOutput{Output: out.Bytes()}
	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		result.ExitCode = killedExitCode
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
	}
	return result, err
}
