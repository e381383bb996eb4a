package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the definition for consistency",
		Long:  `Parses and merges the definition files, checks states and transitions and builds the machine once so pattern transitions are expanded.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := a.definition()
			if err != nil {
				return err
			}
			if err := def.Validate(nil); err != nil {
				return fmt.Errorf("validation failed:\n%w", err)
			}
			m, err := a.machineFor(cmd, def)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "machine %q is valid: %d states, %d transitions\n",
				def.Name, len(m.States()), len(m.Transitions()))
			return nil
		},
	}
}
