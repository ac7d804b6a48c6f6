package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/electricitymaps/carbonshift/internal/window"
	"github.com/electricitymaps/carbonshift/pkg/model"
)

// newPlanCmd computes the optimization window locally, without talking
// to a server or the optimizer. Useful for sanity-checking a policy
// before submitting.
func newPlanCmd() *cobra.Command {
	var (
		patience time.Duration
		duration time.Duration
		lat      float64
		lon      float64
		metric   string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the optimization window a policy would produce",
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := model.WaitPolicy{
				Patience:           patience,
				ExpectedDuration:   duration,
				Location:           model.Location{Latitude: lat, Longitude: lon},
				OptimizationMetric: metric,
			}

			req, err := window.Plan(time.Now().UTC(), policy)
			if err != nil {
				return err
			}

			fmt.Printf("Window:   %s .. %s\n",
				req.StartWindow.Format(time.RFC3339), req.EndWindow.Format(time.RFC3339))
			fmt.Printf("Duration: %d hour(s)\n", req.DurationHours)
			fmt.Printf("Metric:   %s\n", req.Metric)
			fmt.Printf("Location: %.4f, %.4f\n", req.Location.Latitude, req.Location.Longitude)
			return nil
		},
	}

	cmd.Flags().DurationVarP(&patience, "patience", "p", 6*time.Hour, "How long the step may wait for a low-carbon start")
	cmd.Flags().DurationVarP(&duration, "duration", "d", time.Hour, "Expected run duration")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude of the execution location")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude of the execution location")
	cmd.Flags().StringVar(&metric, "metric", "", "Optimization metric")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lon")
	return cmd
}
