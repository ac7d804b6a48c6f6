// Package engine is the orchestration side of the deferral contract: it
// persists suspended steps, owns the wake-up mechanism, and hands control
// to the deferral controller at the right moments. While a step is
// parked, nothing here holds a worker or a connection — the suspended
// state is a store row.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/electricitymaps/carbonshift/internal/deferral"
	"github.com/electricitymaps/carbonshift/internal/store"
	"github.com/electricitymaps/carbonshift/internal/telemetry"
	"github.com/electricitymaps/carbonshift/pkg/model"
)

// Config holds engine configuration.
type Config struct {
	PollInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{PollInterval: 15 * time.Second}
}

// Loop implements the Engine interface with a polling loop. The poll
// granularity bounds how late a wake-up fires after its instant; the
// controller completes unconditionally either way.
type Loop struct {
	store   store.Store
	ctrl    *deferral.Controller
	config  Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	stopCh  chan struct{}
	doneCh  chan struct{}

	now func() time.Time
}

// NewLoop creates an engine loop. The controller's timer registry is
// expected to be the same store: registering a wake-up persists the
// instant, and this loop's due-scan is what fires it.
func NewLoop(st store.Store, ctrl *deferral.Controller, cfg Config, metrics *telemetry.Metrics, logger *slog.Logger) *Loop {
	return &Loop{
		store:   st,
		ctrl:    ctrl,
		config:  cfg,
		logger:  logger.With("component", "engine"),
		metrics: metrics,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		now:     time.Now,
	}
}

// Start begins the engine loop. Blocks until ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("engine started", "poll_interval", l.config.PollInterval)
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("engine stopping (context cancelled)")
			close(l.doneCh)
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("engine stopping (stop called)")
			close(l.doneCh)
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				l.logger.Error("tick error", "error", err)
			}
		}
	}
}

// Stop gracefully shuts down the engine and waits for the current tick to finish.
func (l *Loop) Stop() error {
	close(l.stopCh)
	<-l.doneCh
	return nil
}

// Tick runs a single engine iteration.
func (l *Loop) Tick(ctx context.Context) error {
	// Phase 1: evaluate freshly submitted steps.
	if err := l.evaluatePending(ctx); err != nil {
		return fmt.Errorf("phase 1 (evaluate): %w", err)
	}

	// Phase 2: fire due wake-ups.
	if err := l.fireDueWakeups(ctx); err != nil {
		return fmt.Errorf("phase 2 (wake): %w", err)
	}

	return nil
}

// evaluatePending runs the controller over each PENDING step. Whatever
// the controller decided — immediate completion, parking, failure — is
// persisted; an evaluation error fails only that step, never the tick.
func (l *Loop) evaluatePending(ctx context.Context) error {
	pending, err := l.store.GetStepsByState(ctx, model.StepStatePending)
	if err != nil {
		return err
	}

	for _, step := range pending {
		evalErr := l.ctrl.Evaluate(ctx, step)

		// Guard on the state we read: a cancellation landing while the
		// optimizer call was in flight wins, and this outcome is dropped.
		if err := l.store.UpdateStep(ctx, step, model.StepStatePending); err != nil {
			if errors.Is(err, store.ErrStaleStep) {
				l.logger.Info("step changed during evaluation, dropping outcome", "step_id", step.ID)
				continue
			}
			l.logger.Error("persist evaluated step", "step_id", step.ID, "error", err)
			continue
		}

		switch {
		case evalErr != nil:
			l.metrics.StepsFailed.WithLabelValues(string(step.ErrorCode)).Inc()
		case step.State == model.StepStateWaiting:
			l.metrics.StepsDeferred.Inc()
			l.metrics.StepsWaiting.Inc()
		case step.State == model.StepStateDone:
			l.metrics.StepsImmediate.Inc()
		}
	}

	return nil
}

// fireDueWakeups resumes WAITING steps whose wake-at instant has
// arrived. Steps cancelled while parked never show up in the due scan;
// their registration is simply abandoned.
func (l *Loop) fireDueWakeups(ctx context.Context) error {
	due, err := l.store.GetDueSteps(ctx, l.now())
	if err != nil {
		return err
	}

	for _, step := range due {
		if err := l.ctrl.Resume(ctx, step); err != nil {
			l.logger.Error("resume step", "step_id", step.ID, "error", err)
			continue
		}
		if err := l.store.UpdateStep(ctx, step, model.StepStateWaiting); err != nil {
			if errors.Is(err, store.ErrStaleStep) {
				l.logger.Info("step changed before wake-up persisted, dropping outcome", "step_id", step.ID)
				continue
			}
			l.logger.Error("persist resumed step", "step_id", step.ID, "error", err)
			continue
		}
		l.metrics.StepsResumed.Inc()
		l.metrics.StepsWaiting.Dec()
	}

	return nil
}
