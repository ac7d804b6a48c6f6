package model

import "time"

// Step is the engine-owned record for one deferral-scheduled unit of
// work. While the step is WAITING this row is the entire suspended
// context: the wake-at instant plus enough identity to resume the exact
// step instance. No worker is held.
type Step struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	State  StepState  `json:"state"`
	Policy WaitPolicy `json:"policy"`

	// RecommendedStart is the optimizer's answer, recorded at evaluation
	// and trusted on resume; the optimizer is never re-queried.
	RecommendedStart *time.Time `json:"recommended_start,omitempty"`

	// WakeAt is the registered one-shot wake-up instant. Set only when
	// the step entered WAITING; equals RecommendedStart.
	WakeAt *time.Time `json:"wake_at,omitempty"`

	// Output holds optimizer diagnostics for completed evaluations.
	Output *OptimizationOutput `json:"output,omitempty"`

	ErrorCode    ErrorCode `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`

	Labels map[string]string `json:"labels,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	EvaluatedAt *time.Time `json:"evaluated_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Transition moves the step to next, enforcing the transition table.
func (s *Step) Transition(next StepState) error {
	if !s.State.CanTransitionTo(next) {
		return &InvalidTransitionError{StepID: s.ID, From: s.State, To: next}
	}
	s.State = next
	return nil
}
