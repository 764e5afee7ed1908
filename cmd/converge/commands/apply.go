package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openconverge/converge/pkg/blueprint"
	"github.com/openconverge/converge/pkg/engine"
	"github.com/openconverge/converge/pkg/state"
	"github.com/openconverge/converge/pkg/stores"
)

func newApplyCommand() *cobra.Command {
	var (
		blueprintPath string
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile the provider toward the declared state",
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
				return fmt.Errorf("provider health check failed: refusing to apply")
			}

			current, err := rt.engine.GetState(ctx, bp)
			if err != nil {
				return fmt.Errorf("failed to query provider state: %w", err)
			}

			plan := state.Diff(bp, current)
			fmt.Print(plan.Summary())
			if plan.IsEmpty() {
				fmt.Println("Infrastructure already matches the blueprint, nothing to do.")
				rt.metrics.RecordReconcile("noop")
				return nil
			}
			if dryRun {
				fmt.Println("\nDry run, no changes applied.")
				return nil
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
					Mode:      stores.RunModeApply,
					Status:    stores.RunStatusRunning,
					Summary:   plan.Summary(),
					StartedAt: time.Now().UTC(),
				}); err != nil {
					return err
				}
			}

			report, applyErr := rt.engine.Apply(ctx, plan)
			finishRun(ctx, store, runID, report, applyErr)
			printReport(report)

			if applyErr != nil {
				rt.metrics.RecordReconcile("failed")
				return applyErr
			}
			if !report.OK() {
				rt.metrics.RecordReconcile("failed")
				return fmt.Errorf("apply finished with %d failed action(s)", len(report.Failed()))
			}
			rt.metrics.RecordReconcile("succeeded")
			fmt.Printf("\nApply complete: %d action(s) succeeded.\n", len(report.Succeeded()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&blueprintPath, "file", "f", "blueprint.yaml", "path to blueprint file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute and print the plan without applying it")
	return cmd
}

// finishRun persists per-resource outcomes and the terminal run status.
// History recording is best-effort and never fails the command.
func finishRun(ctx context.Context, store *stores.SQLiteStore, runID string, report *engine.Report, opErr error) {
	if store == nil || report == nil {
		return
	}
	for _, o := range report.Outcomes {
		_ = store.RecordAction(ctx, &stores.ActionRecord{
			RunID:    runID,
			Resource: o.Name,
			Action:   string(o.Action),
			Status:   string(o.Status),
			Reason:   o.Reason,
		})
	}

	status := stores.RunStatusSucceeded
	errMsg := ""
	if opErr != nil {
		status = stores.RunStatusFailed
		errMsg = opErr.Error()
	} else if !report.OK() {
		status = stores.RunStatusFailed
		errMsg = fmt.Sprintf("%d action(s) failed", len(report.Failed()))
	}
	_ = store.FinishRun(ctx, runID, status, errMsg)
}

func printReport(report *engine.Report) {
	if report == nil || len(report.Outcomes) == 0 {
		return
	}
	fmt.Println()
	for _, o := range report.Outcomes {
		line := fmt.Sprintf("  %s %s: %s", o.Action, o.Name, o.Status)
		if o.Reason != "" {
			line += " (" + o.Reason + ")"
		}
		fmt.Println(line)
	}
}
