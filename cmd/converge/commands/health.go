package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check provider reachability and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			if !rt.engine.HealthCheck(cmd.Context()) {
				return fmt.Errorf("provider is unreachable or rejected the credentials (circuit: %s)",
					rt.engine.Breaker().State())
			}
			fmt.Println("Provider is healthy.")
			return nil
		},
	}
}
