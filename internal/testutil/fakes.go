// Package testutil provides shared test fakes for checkrun.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dwsmith1983/checkrun/internal/runner"
	"github.com/dwsmith1983/checkrun/internal/toolchain"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

// Compile-time interface satisfaction checks.
var (
	_ runner.Executor       = (*ScriptedExecutor)(nil)
	_ toolchain.Provisioner = (*FakeProvisioner)(nil)
)

// ScriptedExecutor returns scripted exit codes per command and records the
// order commands were executed in.
type ScriptedExecutor struct {
	mu sync.Mutex
	// ExitCodes maps a command to its exit code; unlisted commands exit 0.
	ExitCodes map[string]int
	// Delays maps a command to a simulated run time, honored against ctx.
	Delays   map[string]time.Duration
	Executed []string
	Envs     map[string][]string
}

// Execute implements runner.Executor.
func (s *ScriptedExecutor) Execute(ctx context.Context, command, _ string, env []string) (runner.StepOutput, error) {
	s.mu.Lock()
	s.Executed = append(s.Executed, command)
	if s.Envs == nil {
		s.Envs = make(map[string][]string)
	}
	s.Envs[command] = append([]string(nil), env...)
	delay := s.Delays[command]
	code := s.ExitCodes[command]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return runner.StepOutput{ExitCode: 124, Output: []byte("killed\n")}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return runner.StepOutput{ExitCode: 124, Output: []byte("killed\n")}, err
	}

	out := runner.StepOutput{ExitCode: code, Output: []byte("ran: " + command + "\n")}
	if code != 0 {
		return out, fmt.Errorf("exit status %d", code)
	}
	return out, nil
}

// Commands returns a copy of the executed command list.
func (s *ScriptedExecutor) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Executed...)
}

// FakeProvisioner records provisioned specs and optionally fails.
type FakeProvisioner struct {
	mu    sync.Mutex
	Err   error
	Specs []types.ToolchainSpec
}

// Provision implements toolchain.Provisioner.
func (f *FakeProvisioner) Provision(_ context.Context, spec types.ToolchainSpec) (*types.Toolchain, error) {
	f.mu.Lock()
	f.Specs = append(f.Specs, spec)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, &toolchain.ProvisionError{Channel: spec.Channel, Err: f.Err}
	}
	return &types.Toolchain{
		Channel:    spec.Channel,
		Components: spec.Components,
		BinDir:     "/opt/toolchains/" + spec.Channel + "/bin",
	}, nil
}

// MemBackend is an in-memory cache backend with call counters.
type MemBackend struct {
	mu       sync.Mutex
	entries  map[string][]byte
	SaveErr  error
	Restores int
	Saves    int
}

// NewMemBackend creates an empty in-memory cache backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{entries: make(map[string][]byte)}
}

// Restore implements cache.Backend.
func (m *MemBackend) Restore(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Restores++
	data, ok := m.entries[key]
	return data, ok, nil
}

// Save implements cache.Backend.
func (m *MemBackend) Save(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.entries[key] = append([]byte(nil), payload...)
	return nil
}

// Keys returns the stored cache keys.
func (m *MemBackend) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}
