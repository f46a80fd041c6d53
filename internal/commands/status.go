package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/checkrun/internal/config"
	"github.com/dwsmith1983/checkrun/internal/provider"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var (
		workflowName string
		runID        string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "status [workflow-name]",
		Short: "Show recent runs and their outcomes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				workflowName = args[0]
			}
			return runStatus(workflowName, runID, limit)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Show detail for a single run ID")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of runs to list")
	return cmd
}

func runStatus(workflowName, runID string, limit int) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	prov, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := prov.Start(ctx); err != nil {
		return fmt.Errorf("connecting to provider: %w", err)
	}
	defer func() { _ = prov.Stop(ctx) }()

	if runID != "" {
		return showRunDetail(ctx, prov, runID)
	}
	return showRecentRuns(ctx, prov, workflowName, limit)
}

func showRecentRuns(ctx context.Context, prov provider.Provider, workflowName string, limit int) error {
	runs, err := prov.ListRuns(ctx, workflowName, limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	bold := color.New(color.Bold)
	if workflowName != "" {
		_, _ = bold.Printf("Recent runs for %s:\n", workflowName)
	} else {
		_, _ = bold.Println("Recent runs:")
	}
	fmt.Println()

	for _, r := range runs {
		passed := 0
		for _, j := range r.Jobs {
			if j.Status == types.JobPassed {
				passed++
			}
		}
		fmt.Printf("  %s  %-9s %-20s %d/%d jobs  %s\n",
			r.RunID, colorRunStatus(r.Status), r.Workflow,
			passed, len(r.Jobs), r.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Println()
	return nil
}

func showRunDetail(ctx context.Context, prov provider.Provider, runID string) error {
	run, err := prov.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("run not found: %w", err)
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("Run: %s\n", run.RunID)
	fmt.Printf("  Workflow: %s\n", run.Workflow)
	fmt.Printf("  Status:   %s\n", colorRunStatus(run.Status))
	fmt.Printf("  Event:    %s on %s (%d changed paths)\n",
		run.Event.Kind, run.Event.Branch, len(run.Event.ChangedPaths))
	fmt.Printf("  Created:  %s\n", run.CreatedAt.Format(time.RFC3339))

	for _, job := range run.Jobs {
		fmt.Println()
		_, _ = bold.Printf("  Job: %s (%s)\n", job.Name, job.Status)
		if job.FailureMessage != "" {
			color.Red("    %s: %s", job.FailureCategory, job.FailureMessage)
		}
		for _, step := range job.Steps {
			switch step.Status {
			case types.StepPassed:
				color.Green("    ✓ %s (%s)", step.Name, step.Duration.Round(time.Millisecond))
			case types.StepFailed:
				color.Red("    ✗ %s (exit %d)", step.Name, step.ExitCode)
			case types.StepSkipped:
				color.Yellow("    ○ %s: skipped", step.Name)
			default:
				fmt.Printf("    ? %s: %s\n", step.Name, step.Status)
			}
		}
	}

	fmt.Println()
	return nil
}
