package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/checkrun/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "checkrun",
		Short: "Change-triggered quality gate runner for repositories",
		Long: `Checkrun executes declarative quality-gate workflows in response to
repository change events. Workflows declare trigger filters (branches and
changed-path globs), parallel jobs, and sequential fail-stop steps with
toolchain provisioning and dependency caching.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewValidateCmd(),
		commands.NewEventCmd(),
		commands.NewStatusCmd(),
		commands.NewServeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
