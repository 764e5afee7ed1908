package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent reconciliation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := setup()
			if err != nil {
				return err
			}
			store, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("run history is disabled: set store.path in the configuration file")
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tBLUEPRINT\tMODE\tSTATUS\tSTARTED\tDURATION")
			for _, run := range runs {
				dur := "-"
				if run.CompletedAt != nil {
					dur = run.CompletedAt.Sub(run.StartedAt).Round(time.Second).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					run.ID, run.Blueprint, run.Mode, run.Status,
					run.StartedAt.Format(time.RFC3339), dur)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}
