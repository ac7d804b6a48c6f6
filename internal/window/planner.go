// Package window derives optimizer request parameters from a wait policy
// and an evaluation instant. Pure computation: no clock capture, no I/O.
package window

import (
	"time"

	"github.com/electricitymaps/carbonshift/pkg/model"
)

// Plan computes the optimization request for a step evaluated at now.
//
// The start of the window is the next full hour strictly after now. When
// now lands exactly on an hour boundary the window still advances a full
// hour; the optimizer must be given a window it can act on in the future,
// so this is a fixed rule rather than a rounding artifact.
//
// The end of the window is now+patience rounded up to the next full hour.
// A patience shorter than the gap to the next hour collapses the window
// to a single point (end == start); that is a valid request, not an error.
func Plan(now time.Time, policy model.WaitPolicy) (model.OptimizationRequest, error) {
	if err := policy.Validate(); err != nil {
		return model.OptimizationRequest{}, err
	}

	start := now.Truncate(time.Hour).Add(time.Hour)
	end := ceilHour(now.Add(policy.Patience))
	if end.Before(start) {
		end = start
	}

	return model.OptimizationRequest{
		StartWindow:   start,
		EndWindow:     end,
		DurationHours: durationHours(policy.ExpectedDuration),
		Location:      policy.Location,
		Metric:        policy.Metric(),
	}, nil
}

// durationHours converts an expected duration to whole reserved hours,
// rounding up, never below one.
func durationHours(d time.Duration) int {
	h := int(d / time.Hour)
	if d%time.Hour != 0 {
		h++
	}
	if h < 1 {
		h = 1
	}
	return h
}

// ceilHour rounds t up to the next hour boundary; an instant already on a
// boundary is returned unchanged.
func ceilHour(t time.Time) time.Time {
	tr := t.Truncate(time.Hour)
	if tr.Equal(t) {
		return tr
	}
	return tr.Add(time.Hour)
}
