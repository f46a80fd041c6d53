package commands

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/checkrun/internal/config"
)

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate checkrun.yaml and all workflow definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate()
		},
	}
}

func runValidate() error {
	cfg, err := config.Load(".")
	if err != nil {
		color.Red("✗ %v", err)
		return err
	}
	color.Green("✓ checkrun.yaml is valid (provider: %s)", cfg.Provider)

	reg, err := loadRegistry(cfg)
	if err != nil {
		color.Red("✗ %v", err)
		return err
	}

	workflows := reg.List()
	sort.Slice(workflows, func(i, j int) bool { return workflows[i].Name < workflows[j].Name })
	for _, wf := range workflows {
		triggers := make([]string, 0, len(wf.On))
		for kind := range wf.On {
			triggers = append(triggers, string(kind))
		}
		sort.Strings(triggers)
		color.Green("✓ workflow %s (%d jobs, on: %v)", wf.Name, len(wf.Jobs), triggers)
	}

	if len(workflows) == 0 {
		color.Yellow("⚠ no workflows found in %v", cfg.WorkflowDirs)
	}
	fmt.Println()
	return nil
}
