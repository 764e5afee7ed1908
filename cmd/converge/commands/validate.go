package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openconverge/converge/pkg/blueprint"
)

func newValidateCommand() *cobra.Command {
	var blueprintPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a blueprint file",
		RunE: func(cmd *cobra.Command, args []string) error {
			bp, err := blueprint.NewLoader().Load(blueprintPath)
			if err != nil {
				return err
			}
			fmt.Printf("Blueprint %q is valid (%d resources)\n", bp.Name, len(bp.Resources))
			return nil
		},
	}

	cmd.Flags().StringVarP(&blueprintPath, "file", "f", "blueprint.yaml", "path to blueprint file")
	return cmd
}
