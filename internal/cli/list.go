package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, pg, err := client.ListSteps(state)
			if err != nil {
				return fmt.Errorf("list steps: %w", err)
			}

			if len(steps) == 0 {
				fmt.Println("No steps found.")
				return nil
			}

			fmt.Printf("%-42s  %-10s  %-24s  %s\n", "ID", "STATE", "NAME", "WAKE AT")
			fmt.Printf("%-42s  %-10s  %-24s  %s\n", "----", "-----", "----", "-------")
			for _, step := range steps {
				wakeAt := ""
				if step.WakeAt != nil {
					wakeAt = step.WakeAt.UTC().Format("2006-01-02 15:04:05")
				}
				fmt.Printf("%-42s  %-10s  %-24s  %s\n", step.ID, step.State, step.Name, wakeAt)
			}

			if pg != nil && pg.HasMore {
				fmt.Printf("\n(%d of %d shown)\n", len(steps), pg.Total)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (PENDING, WAITING, DONE, FAILED, CANCELLED)")
	return cmd
}
