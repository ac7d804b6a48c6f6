package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/electricitymaps/carbonshift/pkg/model"
)

func newSubmitCmd() *cobra.Command {
	var (
		patience time.Duration
		duration time.Duration
		lat      float64
		lon      float64
		metric   string
		labels   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "submit <name>",
		Short: "Submit a step for carbon-aware scheduling",
		Long:  "Submit a named step with its wait policy. The server evaluates it against the carbon forecast and either runs it immediately or parks it until the low-carbon start.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := client.CreateStep(CreateStepRequest{
				Name: args[0],
				Policy: model.WaitPolicy{
					Patience:           patience,
					ExpectedDuration:   duration,
					Location:           model.Location{Latitude: lat, Longitude: lon},
					OptimizationMetric: metric,
				},
				Labels: labels,
			})
			if err != nil {
				return fmt.Errorf("create step: %w", err)
			}

			fmt.Printf("Step created: %s (state: %s)\n", step.ID, step.State)
			return nil
		},
	}

	cmd.Flags().DurationVarP(&patience, "patience", "p", 6*time.Hour, "How long the step may wait for a low-carbon start")
	cmd.Flags().DurationVarP(&duration, "duration", "d", time.Hour, "Expected run duration")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude of the execution location")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude of the execution location")
	cmd.Flags().StringVar(&metric, "metric", "", "Optimization metric (default: flow-traced carbon intensity)")
	cmd.Flags().StringToStringVar(&labels, "label", nil, "Labels as key=value pairs")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lon")
	return cmd
}
