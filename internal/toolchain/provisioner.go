// Package toolchain acquires compiler toolchains into a job's execution environment.
package toolchain

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

// Provisioner acquires a toolchain described by a spec. Implementations must
// be idempotent: provisioning the same spec twice in the same environment
// yields an equivalent toolchain without re-downloading.
type Provisioner interface {
	Provision(ctx context.Context, spec types.ToolchainSpec) (*types.Toolchain, error)
}

// ProvisionError signals a failed or rejected provisioning attempt. It is
// fatal to the job: no steps after a failed toolchain step run.
type ProvisionError struct {
	Channel string
	Err     error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning toolchain %q: %v", e.Channel, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// CommandRunner executes an external command. Injectable for testing.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Channel names follow the rustup convention: a release channel or a version.
var channelPattern = regexp.MustCompile(`^(stable|beta|nightly|\d+\.\d+(\.\d+)?)(-.+)?$`)

// Rustup provisions toolchains through the rustup CLI, with an install
// marker per spec so repeat calls skip the network entirely.
type Rustup struct {
	root   string // RUSTUP_HOME-equivalent directory
	runner CommandRunner

	mu        sync.Mutex
	installed map[string]bool // fingerprint of spec -> done
}

// Option configures a Rustup provisioner.
type Option func(*Rustup)

// WithCommandRunner sets a custom command runner (useful for testing).
func WithCommandRunner(r CommandRunner) Option {
	return func(p *Rustup) { p.runner = r }
}

// NewRustup creates a rustup-backed provisioner rooted at dir.
func NewRustup(dir string, opts ...Option) *Rustup {
	p := &Rustup{
		root:      dir,
		runner:    execRunner{},
		installed: make(map[string]bool),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Provision installs the channel and any requested components, returning a
// Toolchain whose bin dir is injected into later steps' PATH.
func (p *Rustup) Provision(ctx context.Context, spec types.ToolchainSpec) (*types.Toolchain, error) {
	if !channelPattern.MatchString(spec.Channel) {
		return nil, &ProvisionError{Channel: spec.Channel, Err: fmt.Errorf("unknown channel")}
	}

	components := append([]string(nil), spec.Components...)
	sort.Strings(components)
	key := spec.Channel + "|" + strings.Join(components, ",")

	p.mu.Lock()
	done := p.installed[key]
	p.mu.Unlock()

	tc := &types.Toolchain{
		Channel:    spec.Channel,
		Components: components,
		BinDir:     filepath.Join(p.root, "toolchains", spec.Channel, "bin"),
	}
	if done || p.markerExists(key) {
		return tc, nil
	}

	if err := p.runner.Run(ctx, "rustup", "toolchain", "install", spec.Channel, "--profile", "minimal"); err != nil {
		return nil, &ProvisionError{Channel: spec.Channel, Err: err}
	}
	for _, c := range components {
		if err := p.runner.Run(ctx, "rustup", "component", "add", c, "--toolchain", spec.Channel); err != nil {
			return nil, &ProvisionError{Channel: spec.Channel, Err: fmt.Errorf("component %q: %w", c, err)}
		}
	}

	p.mu.Lock()
	p.installed[key] = true
	p.mu.Unlock()
	p.writeMarker(key)

	return tc, nil
}

// Marker files survive process restarts so a warm runner stays idempotent.
func (p *Rustup) markerPath(key string) string {
	safe := strings.NewReplacer("|", "_", ",", "_", "/", "_").Replace(key)
	return filepath.Join(p.root, "markers", safe)
}

func (p *Rustup) markerExists(key string) bool {
	_, err := os.Stat(p.markerPath(key))
	return err == nil
}

func (p *Rustup) writeMarker(key string) {
	path := p.markerPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(path, []byte(key+"\n"), 0o644)
}
