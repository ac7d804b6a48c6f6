package model

// StepState represents the lifecycle state of a scheduled step.
//
// PENDING is the entry state: the step has been submitted but not yet
// evaluated against the forecast. Evaluation either completes the step in
// the same pass (DONE), parks it until the recommended instant (WAITING),
// or fails it (FAILED). A WAITING step holds no worker; the only expected
// event is its wake-up firing.
type StepState string

const (
	StepStatePending   StepState = "PENDING"
	StepStateWaiting   StepState = "WAITING"
	StepStateDone      StepState = "DONE"
	StepStateFailed    StepState = "FAILED"
	StepStateCancelled StepState = "CANCELLED"
)

// String returns the string representation of the step state.
func (s StepState) String() string {
	return string(s)
}

// IsTerminal returns true if the step is in a final state.
func (s StepState) IsTerminal() bool {
	switch s {
	case StepStateDone, StepStateFailed, StepStateCancelled:
		return true
	}
	return false
}

// ValidStepTransitions defines the allowed state transitions for steps.
// There is no path out of WAITING except completion or cancellation: once
// parked, a step is never re-evaluated and never retried from this layer.
var ValidStepTransitions = map[StepState][]StepState{
	StepStatePending: {StepStateWaiting, StepStateDone, StepStateFailed, StepStateCancelled},
	StepStateWaiting: {StepStateDone, StepStateCancelled},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s StepState) CanTransitionTo(next StepState) bool {
	for _, allowed := range ValidStepTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
