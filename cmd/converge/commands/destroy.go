package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openconverge/converge/pkg/blueprint"
	"github.com/openconverge/converge/pkg/state"
	"github.com/openconverge/converge/pkg/stores"
)

func newDestroyCommand() *cobra.Command {
	var (
		blueprintPath string
		autoApprove   bool
	)

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete every blueprint-managed resource from the provider",
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

			stopMetrics := rt.serveMetrics()
			defer stopMetrics()

			if !rt.engine.HealthCheck(ctx) {
				return fmt.Errorf("provider health check failed: refusing to destroy")
			}

			current, err := rt.engine.GetState(ctx, bp)
			if err != nil {
				return fmt.Errorf("failed to query provider state: %w", err)
			}
			if len(current) == 0 {
				fmt.Println("No managed resources found, nothing to destroy.")
				return nil
			}

			plan := &state.Plan{ToDelete: current}
			fmt.Print(plan.Summary())

			if !autoApprove {
				fmt.Print("\nType 'yes' to destroy these resources: ")
				reader := bufio.NewReader(os.Stdin)
				answer, _ := reader.ReadString('\n')
				if strings.TrimSpace(answer) != "yes" {
					fmt.Println("Destroy cancelled.")
					return nil
				}
			}

			store, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			runID := ""
			if store != nil {
				defer store.Close()
				runID = uuid.New().String()
				if err := store.CreateRun(ctx, &stores.Run{
					ID:        runID,
					Blueprint: bp.Name,
					Mode:      stores.RunModeDestroy,
					Status:    stores.RunStatusRunning,
					Summary:   plan.Summary(),
					StartedAt: time.Now().UTC(),
				}); err != nil {
					return err
				}
			}

			report, destroyErr := rt.engine.Destroy(ctx, plan)
			finishRun(ctx, store, runID, report, destroyErr)
			printReport(report)

			if destroyErr != nil {
				rt.metrics.RecordReconcile("failed")
				return destroyErr
			}
			if !report.OK() {
				rt.metrics.RecordReconcile("failed")
				return fmt.Errorf("destroy finished with %d failed action(s)", len(report.Failed()))
			}
			rt.metrics.RecordReconcile("succeeded")
			fmt.Printf("\nDestroy complete: %d resource(s) removed.\n", len(report.Succeeded()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&blueprintPath, "file", "f", "blueprint.yaml", "path to blueprint file")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip the interactive confirmation prompt")
	return cmd
}
