package store

import (
	"context"
	"errors"
	"time"

	"github.com/electricitymaps/carbonshift/pkg/model"
)

// ErrStaleStep reports that a guarded update matched no row: the step
// either does not exist or its state changed under the caller. Callers
// that lost the race must drop their outcome, not retry it.
var ErrStaleStep = errors.New("step state changed concurrently")

// Store defines the persistence layer for scheduled steps. A WAITING
// row is the engine-held deferral state: the wake-at instant plus the
// identity needed to resume that exact step instance.
type Store interface {
	CreateStep(ctx context.Context, step *model.Step) error
	GetStep(ctx context.Context, id string) (*model.Step, error)
	ListSteps(ctx context.Context, opts model.ListOptions) ([]*model.Step, int, error)
	// UpdateStep persists step guarded on its prior state: the row is
	// written only while it still holds prev, so a concurrent
	// cancellation is never overwritten. Returns ErrStaleStep when the
	// guard matched no row.
	UpdateStep(ctx context.Context, step *model.Step, prev model.StepState) error
	GetStepsByState(ctx context.Context, state model.StepState) ([]*model.Step, error)

	// GetDueSteps returns WAITING steps whose wake-at instant is at or
	// before now.
	GetDueSteps(ctx context.Context, now time.Time) ([]*model.Step, error)

	// RegisterWakeup persists a one-shot wake-up instant for a step.
	RegisterWakeup(ctx context.Context, stepID string, at time.Time) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
