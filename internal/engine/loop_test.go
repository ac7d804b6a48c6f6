package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/electricitymaps/carbonshift/internal/deferral"
	"github.com/electricitymaps/carbonshift/internal/store"
	"github.com/electricitymaps/carbonshift/internal/telemetry"
	"github.com/electricitymaps/carbonshift/pkg/model"
)

var loopBase = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

type scriptedOptimizer struct {
	recommend time.Time
	err       error
	calls     int
}

func (s *scriptedOptimizer) Query(ctx context.Context, req model.OptimizationRequest) (*model.OptimizationResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &model.OptimizationResult{
		RecommendedStart: s.recommend,
		Location:         [2]float64{req.Location.Longitude, req.Location.Latitude},
	}, nil
}

func newTestLoop(t *testing.T, opt *scriptedOptimizer) (*Loop, *store.SQLiteStore, *time.Time) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	clock := loopBase
	ctrl := deferral.NewController(opt, st, logger).WithClock(func() time.Time { return clock })
	metrics := telemetry.New(prometheus.NewRegistry())
	l := NewLoop(st, ctrl, DefaultConfig(), metrics, logger)
	l.now = func() time.Time { return clock }
	return l, st, &clock
}

func seedStep(t *testing.T, st store.Store, id string) *model.Step {
	t.Helper()
	step := &model.Step{
		ID:    id,
		Name:  "nightly-batch",
		State: model.StepStatePending,
		Policy: model.WaitPolicy{
			Patience:         6 * time.Hour,
			ExpectedDuration: 90 * time.Minute,
			Location:         model.Location{Latitude: 55.68, Longitude: 12.57},
		},
		CreatedAt: loopBase,
	}
	if err := st.CreateStep(context.Background(), step); err != nil {
		t.Fatalf("seed step: %v", err)
	}
	return step
}

func TestTickDefersPendingStep(t *testing.T) {
	opt := &scriptedOptimizer{recommend: loopBase.Add(3 * time.Hour)}
	l, st, _ := newTestLoop(t, opt)

	seedStep(t, st, "step_defer")
	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	got, err := st.GetStep(context.Background(), "step_defer")
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if got.State != model.StepStateWaiting {
		t.Fatalf("state = %s, want WAITING", got.State)
	}
	if got.WakeAt == nil || !got.WakeAt.Equal(opt.recommend) {
		t.Errorf("wake_at = %v, want %v", got.WakeAt, opt.recommend)
	}
	if opt.calls != 1 {
		t.Errorf("optimizer calls = %d, want 1", opt.calls)
	}
}

func TestTickCompletesImmediatelyOnPastRecommendation(t *testing.T) {
	opt := &scriptedOptimizer{recommend: loopBase.Add(-10 * time.Minute)}
	l, st, _ := newTestLoop(t, opt)

	seedStep(t, st, "step_now")
	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	got, err := st.GetStep(context.Background(), "step_now")
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if got.State != model.StepStateDone {
		t.Fatalf("state = %s, want DONE", got.State)
	}
	if got.WakeAt != nil {
		t.Errorf("wake_at = %v, want none for immediate completion", got.WakeAt)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestTickFiresDueWakeup(t *testing.T) {
	opt := &scriptedOptimizer{recommend: loopBase.Add(2 * time.Hour)}
	l, st, clock := newTestLoop(t, opt)

	seedStep(t, st, "step_wake")
	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	// Advance past the wake-up instant and tick again.
	*clock = clock.Add(2*time.Hour + time.Minute)

	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	got, err := st.GetStep(context.Background(), "step_wake")
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if got.State != model.StepStateDone {
		t.Fatalf("state = %s, want DONE after wake-up", got.State)
	}
	if opt.calls != 1 {
		t.Errorf("optimizer calls = %d, want 1 (no re-query on resume)", opt.calls)
	}
}

func TestTickLeavesFutureWakeupParked(t *testing.T) {
	opt := &scriptedOptimizer{recommend: loopBase.Add(4 * time.Hour)}
	l, st, _ := newTestLoop(t, opt)

	seedStep(t, st, "step_parked")
	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	got, err := st.GetStep(context.Background(), "step_parked")
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if got.State != model.StepStateWaiting {
		t.Fatalf("state = %s, want WAITING while wake-up is in the future", got.State)
	}
}

func TestTickSkipsCancelledWakeup(t *testing.T) {
	opt := &scriptedOptimizer{recommend: loopBase.Add(time.Hour)}
	l, st, clock := newTestLoop(t, opt)

	step := seedStep(t, st, "step_cancelled")
	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	// Cancel while parked; the registered wake-up is abandoned.
	got, err := st.GetStep(context.Background(), step.ID)
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if err := got.Transition(model.StepStateCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := st.UpdateStep(context.Background(), got, model.StepStateWaiting); err != nil {
		t.Fatalf("persist cancel: %v", err)
	}

	*clock = clock.Add(2 * time.Hour)

	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	got, err = st.GetStep(context.Background(), step.ID)
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if got.State != model.StepStateCancelled {
		t.Fatalf("state = %s, want CANCELLED to stick", got.State)
	}
}

// blockingOptimizer signals when a query starts and holds it until
// released, so a test can race another writer against an in-flight
// evaluation.
type blockingOptimizer struct {
	started chan struct{}
	release chan struct{}
	inner   scriptedOptimizer
}

func (b *blockingOptimizer) Query(ctx context.Context, req model.OptimizationRequest) (*model.OptimizationResult, error) {
	close(b.started)
	<-b.release
	return b.inner.Query(ctx, req)
}

func TestTickDropsOutcomeWhenCancelledDuringEvaluation(t *testing.T) {
	opt := &blockingOptimizer{
		started: make(chan struct{}),
		release: make(chan struct{}),
		inner:   scriptedOptimizer{recommend: loopBase.Add(time.Hour)},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	clock := loopBase
	ctrl := deferral.NewController(opt, st, logger).WithClock(func() time.Time { return clock })
	l := NewLoop(st, ctrl, DefaultConfig(), telemetry.New(prometheus.NewRegistry()), logger)
	l.now = func() time.Time { return clock }

	step := seedStep(t, st, "step_race")

	tickDone := make(chan error, 1)
	go func() { tickDone <- l.Tick(context.Background()) }()

	// The evaluation is now holding the optimizer call. Cancel the step
	// underneath it.
	<-opt.started
	got, err := st.GetStep(context.Background(), step.ID)
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if err := got.Transition(model.StepStateCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := st.UpdateStep(context.Background(), got, model.StepStatePending); err != nil {
		t.Fatalf("persist cancel: %v", err)
	}

	close(opt.release)
	if err := <-tickDone; err != nil {
		t.Fatalf("tick: %v", err)
	}

	got, err = st.GetStep(context.Background(), step.ID)
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if got.State != model.StepStateCancelled {
		t.Fatalf("state = %s, want CANCELLED to survive the in-flight evaluation", got.State)
	}

	// A later tick past the recommended instant must not revive it.
	clock = clock.Add(2 * time.Hour)
	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("later tick: %v", err)
	}
	got, err = st.GetStep(context.Background(), step.ID)
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if got.State != model.StepStateCancelled {
		t.Fatalf("state = %s, want CANCELLED to stay terminal", got.State)
	}
}

func TestTickFailsStepOnOptimizerError(t *testing.T) {
	opt := &scriptedOptimizer{err: model.NewAuthenticationError(401)}
	l, st, _ := newTestLoop(t, opt)

	seedStep(t, st, "step_authfail")
	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	got, err := st.GetStep(context.Background(), "step_authfail")
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if got.State != model.StepStateFailed {
		t.Fatalf("state = %s, want FAILED", got.State)
	}
	if got.ErrorCode != model.ErrAuthentication {
		t.Errorf("error code = %s, want %s", got.ErrorCode, model.ErrAuthentication)
	}
}

func TestStartStop(t *testing.T) {
	opt := &scriptedOptimizer{recommend: loopBase.Add(time.Hour)}
	l, _, _ := newTestLoop(t, opt)
	l.config.PollInterval = 5 * time.Millisecond

	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	if err := l.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("start returned error: %v", err)
	}
}
