package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const initValkeyTimeout = 60 * time.Second

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var skipValkey bool

	cmd := &cobra.Command{
		Use:   "init [project-name]",
		Short: "Initialize a new checkrun project",
		Long:  "Creates project scaffolding and optionally starts a local Valkey container.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0], skipValkey)
		},
	}

	cmd.Flags().BoolVar(&skipValkey, "skip-valkey", false, "Skip starting Valkey container")
	return cmd
}

func runInit(projectName string, skipValkey bool) error {
	bold := color.New(color.Bold)

	_, _ = bold.Printf("Initializing checkrun project: %s\n", projectName)

	if err := os.MkdirAll(filepath.Join(projectName, "workflows"), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	// Write checkrun.yaml
	configPath := filepath.Join(projectName, "checkrun.yaml")
	configContent := `provider: redis
redis:
  addr: localhost:6379
  keyPrefix: "checkrun:"
server:
  addr: ":3000"
workflowDirs:
  - ./workflows
cache:
  backend: disk
  disk:
    dir: .checkrun/cache
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Write example workflow
	workflowPath := filepath.Join(projectName, "workflows", "quality.yaml")
	workflowContent := `name: quality
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
    steps:
      - name: toolchain
        uses: toolchain
        with:
          channel: stable
          components: rustfmt
      - name: check formatting
        run: cargo fmt --all -- --check
  - name: clippy
    timeout-minutes: 30
    steps:
      - name: toolchain
        uses: toolchain
        with:
          channel: stable
          components: clippy
      - name: restore cache
        uses: cache
        with:
          key-files: Cargo.lock
      - name: lint
        run: cargo clippy --all-targets -- -D warnings
  - name: deny
    timeout-minutes: 30
    steps:
      - name: toolchain
        uses: toolchain
        with:
          channel: stable
      - name: restore cache
        uses: cache
        with:
          key-files: Cargo.lock
      - name: check advisories
        run: cargo deny check
`
	if err := os.WriteFile(workflowPath, []byte(workflowContent), 0o644); err != nil {
		return fmt.Errorf("writing example workflow: %w", err)
	}

	color.Green("  ✓ Project scaffolded")

	// Start Valkey container
	if !skipValkey {
		if err := startValkey(); err != nil {
			color.Yellow("  ⚠ Valkey setup skipped: %v", err)
			color.Yellow("    Run manually: docker run -d --name checkrun-valkey -p 6379:6379 valkey/valkey:8")
		} else {
			color.Green("  ✓ Valkey container started")
		}
	} else {
		color.Yellow("  → Valkey setup skipped (--skip-valkey)")
	}

	fmt.Println()
	_, _ = bold.Println("Next steps:")
	fmt.Printf("  cd %s\n", projectName)
	fmt.Println("  checkrun validate")
	fmt.Println("  checkrun serve")
	return nil
}

func startValkey() error {
	// Check Docker availability
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker not found in PATH")
	}

	// Check if container already exists
	checkCmd := exec.Command("docker", "inspect", "checkrun-valkey")
	if checkCmd.Run() == nil {
		// Container exists, try starting it
		startCmd := exec.Command("docker", "start", "checkrun-valkey")
		if err := startCmd.Run(); err != nil {
			return fmt.Errorf("starting existing container: %w", err)
		}
		return nil
	}

	// Create and start new container
	ctx, cancel := context.WithTimeout(context.Background(), initValkeyTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "run", "-d",
		"--name", "checkrun-valkey",
		"-p", "6379:6379",
		"valkey/valkey:8",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}
