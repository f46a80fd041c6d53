package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/checkrun/internal/config"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

// NewEventCmd creates the event command.
func NewEventCmd() *cobra.Command {
	var (
		kind     string
		repo     string
		branch   string
		commit   string
		paths    []string
		fromFile string
	)

	cmd := &cobra.Command{
		Use:   "event",
		Short: "Submit a change event and execute matching workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			event := types.ChangeEvent{
				Kind:         types.ChangeKind(kind),
				Repo:         repo,
				Branch:       branch,
				Commit:       commit,
				ChangedPaths: paths,
			}
			if fromFile != "" {
				data, err := os.ReadFile(fromFile)
				if err != nil {
					return fmt.Errorf("reading event file: %w", err)
				}
				if err := json.Unmarshal(data, &event); err != nil {
					return fmt.Errorf("parsing event file: %w", err)
				}
			}
			return runEvent(event)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "push", "Event kind (push or pull_request)")
	cmd.Flags().StringVar(&repo, "repo", "", "Repository name")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch the change landed on")
	cmd.Flags().StringVar(&commit, "commit", "", "Commit SHA")
	cmd.Flags().StringSliceVar(&paths, "paths", nil, "Changed file paths")
	cmd.Flags().StringVar(&fromFile, "file", "", "Read the event from a JSON file instead of flags")
	return cmd
}

func runEvent(event types.ChangeEvent) error {
	if event.Kind != types.ChangePush && event.Kind != types.ChangePullRequest {
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}
	if event.Branch == "" {
		return fmt.Errorf("branch is required")
	}

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	prov, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	ctx := context.Background()
	if err := prov.Start(ctx); err != nil {
		return fmt.Errorf("connecting to provider: %w", err)
	}
	defer func() { _ = prov.Stop(context.Background()) }()

	logger := slog.Default()
	orch, _, _, err := buildOrchestrator(cfg, prov, nil, logger)
	if err != nil {
		return err
	}

	color.Cyan("Submitting %s event on %s (%d changed paths)...", event.Kind, event.Branch, len(event.ChangedPaths))

	runs, err := orch.HandleEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("handling event: %w", err)
	}

	if len(runs) == 0 {
		color.Yellow("No workflow matched this event")
		return nil
	}

	failed := false
	for _, run := range runs {
		printRun(run)
		if run.Status != types.RunPassed {
			failed = true
		}
	}

	if failed {
		return fmt.Errorf("one or more runs failed")
	}
	return nil
}

func printRun(run types.Run) {
	bold := color.New(color.Bold)
	fmt.Println()
	_, _ = bold.Printf("Run %s (workflow: %s)\n", run.RunID, run.Workflow)
	fmt.Printf("  Status: %s\n", colorRunStatus(run.Status))
	for _, job := range run.Jobs {
		switch job.Status {
		case types.JobPassed:
			color.Green("  ✓ %s (%s)", job.Name, job.FinishedAt.Sub(job.StartedAt).Round(time.Millisecond))
		case types.JobFailed:
			color.Red("  ✗ %s: %s", job.Name, job.FailureMessage)
		case types.JobTimedOut:
			color.Red("  ✗ %s: timed out", job.Name)
		case types.JobCancelled:
			color.Yellow("  ○ %s: cancelled", job.Name)
		default:
			fmt.Printf("  ? %s: %s\n", job.Name, job.Status)
		}
	}
}

func colorRunStatus(status types.RunStatus) string {
	switch status {
	case types.RunPassed:
		return color.GreenString(string(status))
	case types.RunFailed:
		return color.RedString(string(status))
	case types.RunRunning, types.RunPending:
		return color.CyanString(string(status))
	default:
		return string(status)
	}
}
