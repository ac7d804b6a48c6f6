package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <step_id>",
		Short: "Check the status of a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := client.GetStep(args[0])
			if err != nil {
				return fmt.Errorf("get step: %w", err)
			}

			fmt.Printf("Step: %s\n", step.ID)
			fmt.Printf("  Name:  %s\n", step.Name)
			fmt.Printf("  State: %s\n", step.State)

			if step.RecommendedStart != nil {
				fmt.Printf("  Recommended start: %s\n", step.RecommendedStart.Format(time.RFC3339))
			}
			if step.WakeAt != nil {
				fmt.Printf("  Wake at:           %s\n", step.WakeAt.Format(time.RFC3339))
			}
			if step.ErrorCode != "" {
				fmt.Printf("  Error: %s (%s)\n", step.ErrorCode, step.ErrorMessage)
			}
			fmt.Printf("  Created:   %s\n", step.CreatedAt.Format(time.RFC3339))
			if step.CompletedAt != nil {
				fmt.Printf("  Completed: %s\n", step.CompletedAt.Format(time.RFC3339))
			}

			return nil
		},
	}
}
