// Package deferral implements the suspend/resume contract for
// carbon-aware steps: evaluate once against the forecast, then either
// complete immediately or park the step until the recommended instant.
package deferral

import (
	"context"
	"log/slog"
	"time"

	"github.com/electricitymaps/carbonshift/internal/window"
	"github.com/electricitymaps/carbonshift/pkg/model"
)

// OptimizerClient is the narrow surface the controller needs from the
// forecast provider. Satisfied by emaps.HTTPOptimizerClient and by test
// doubles.
type OptimizerClient interface {
	Query(ctx context.Context, req model.OptimizationRequest) (*model.OptimizationResult, error)
}

// TimerRegistry registers a one-shot wake-up with the orchestration
// engine's trigger mechanism. The engine owns firing semantics; the
// controller only supplies the target instant and the step identity.
type TimerRegistry interface {
	RegisterWakeup(ctx context.Context, stepID string, at time.Time) error
}

// Controller drives a step through PENDING → DONE (immediate) or
// PENDING → WAITING → DONE. Each step instance's machine is private to
// that instance; the controller holds no per-step state of its own.
type Controller struct {
	client OptimizerClient
	timers TimerRegistry
	logger *slog.Logger

	now func() time.Time
}

// NewController creates a controller.
func NewController(client OptimizerClient, timers TimerRegistry, logger *slog.Logger) *Controller {
	return &Controller{
		client: client,
		timers: timers,
		logger: logger.With("component", "deferral"),
		now:    time.Now,
	}
}

// Evaluate runs the START phase for a PENDING step: plan the window,
// query the optimizer once, and decide. The step is mutated in place;
// persisting it is the caller's concern.
//
// A recommended start at or before now completes the step in this same
// invocation with no suspension — this also covers the provider
// returning an instant that passed while the response was in flight. A
// future recommendation parks the step, registering a wake-up for
// exactly that instant. Any failure leaves the step FAILED before any
// suspension is registered; there is no proceed-anyway fallback, since
// running at an arbitrary time defeats the purpose.
func (c *Controller) Evaluate(ctx context.Context, step *model.Step) error {
	now := c.now().UTC()

	req, err := window.Plan(now, step.Policy)
	if err != nil {
		c.fail(step, now, err)
		return err
	}

	res, err := c.client.Query(ctx, req)
	if err != nil {
		c.fail(step, now, err)
		return err
	}

	step.EvaluatedAt = &now
	recommended := res.RecommendedStart
	step.RecommendedStart = &recommended
	step.Output = res.Output

	if !recommended.After(now) {
		if err := step.Transition(model.StepStateDone); err != nil {
			return err
		}
		step.CompletedAt = &now
		c.logger.Info("optimal start already arrived, completing immediately",
			"step_id", step.ID, "recommended_start", recommended)
		return nil
	}

	if err := c.timers.RegisterWakeup(ctx, step.ID, recommended); err != nil {
		c.fail(step, now, err)
		return err
	}
	if err := step.Transition(model.StepStateWaiting); err != nil {
		return err
	}
	step.WakeAt = &recommended
	c.logger.Info("step deferred",
		"step_id", step.ID,
		"wake_at", recommended,
		"delay", recommended.Sub(now).Round(time.Second))
	return nil
}

// WithClock overrides the controller's time source and returns the
// controller.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// Resume runs the wake-up continuation for a WAITING step. It completes
// unconditionally: the previously recommended instant is trusted and the
// optimizer is never re-queried.
func (c *Controller) Resume(ctx context.Context, step *model.Step) error {
	if err := step.Transition(model.StepStateDone); err != nil {
		return err
	}
	now := c.now().UTC()
	step.CompletedAt = &now
	c.logger.Info("step resumed", "step_id", step.ID, "wake_at", step.WakeAt)
	return nil
}

func (c *Controller) fail(step *model.Step, now time.Time, cause error) {
	if err := step.Transition(model.StepStateFailed); err != nil {
		c.logger.Error("cannot fail step", "step_id", step.ID, "state", step.State, "error", err)
		return
	}
	step.ErrorCode = model.CodeOf(cause)
	step.ErrorMessage = cause.Error()
	step.CompletedAt = &now
	c.logger.Error("step failed", "step_id", step.ID, "code", step.ErrorCode, "error", cause)
}
