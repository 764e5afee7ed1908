package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openconverge/converge/pkg/blueprint"
	"github.com/openconverge/converge/pkg/state"
)

func newPlanCommand() *cobra.Command {
	var blueprintPath string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the actions required to reach the declared state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := setup()
			if err != nil {
				return err
			}
			bp, err := blueprint.NewLoader().Load(blueprintPath)
			if err != nil {
				return err
			}

			if !rt.engine.HealthCheck(ctx) {
				return fmt.Errorf("provider health check failed: cannot compute a trustworthy plan")
			}

			current, err := rt.engine.GetState(ctx, bp)
			if err != nil {
				return fmt.Errorf("failed to query provider state: %w", err)
			}

			plan := state.Diff(bp, current)
			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}
			fmt.Print(plan.Render())
			return nil
		},
	}

	cmd.Flags().StringVarP(&blueprintPath, "file", "f", "blueprint.yaml", "path to blueprint file")
	return cmd
}
