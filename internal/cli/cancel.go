package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <step_id>",
		Short: "Cancel a pending or waiting step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := client.CancelStep(args[0])
			if err != nil {
				return fmt.Errorf("cancel step: %w", err)
			}

			fmt.Printf("Step %s: %s\n", args[0], state)
			return nil
		},
	}
}
