package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command with the given context and version info.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := &cobra.Command{
		Use:   "converge",
		Short: "Declarative infrastructure reconciliation",
		Long: `Converge reconciles declared infrastructure blueprints against the
actual state of a compute provider. It computes a plan of create, update,
and delete actions and applies it through a resilient provider driver.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "converge.yaml", "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")

	rootCmd.AddCommand(
		newValidateCommand(),
		newPlanCommand(),
		newApplyCommand(),
		newDestroyCommand(),
		newHealthCommand(),
		newRunsCommand(),
	)

	return rootCmd.ExecuteContext(ctx)
}
