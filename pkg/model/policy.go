package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultOptimizationMetric is the forecast signal used when a policy does
// not name one.
const DefaultOptimizationMetric = "flow-traced_carbon_intensity"

// Location is a geographic coordinate pair, latitude first. The optimizer
// wire format orders coordinates the other way around; that flip happens
// at serialization time, never here.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// WaitPolicy describes how long a step is willing to wait for a
// low-carbon start, and where it will run. Created once at step
// definition time and never mutated.
type WaitPolicy struct {
	// Patience bounds the waiting window: the step starts no later than
	// roughly now+Patience (rounded up to the next hour).
	Patience time.Duration

	// ExpectedDuration is how long the work is expected to run. The
	// optimizer reserves whole hours; sub-hour durations reserve one.
	ExpectedDuration time.Duration

	// Location is where the work will consume electricity.
	Location Location

	// OptimizationMetric overrides the forecast signal. Empty means
	// DefaultOptimizationMetric.
	OptimizationMetric string
}

// Metric returns the effective optimization metric.
func (p WaitPolicy) Metric() string {
	if p.OptimizationMetric == "" {
		return DefaultOptimizationMetric
	}
	return p.OptimizationMetric
}

// Validate checks the policy invariants. It returns an INVALID_POLICY
// SchedulerError on the first violation found.
func (p WaitPolicy) Validate() error {
	if p.Patience <= 0 {
		return NewInvalidPolicyError(fmt.Sprintf("patience must be positive, got %s", p.Patience))
	}
	if p.ExpectedDuration <= 0 {
		return NewInvalidPolicyError(fmt.Sprintf("expected duration must be positive, got %s", p.ExpectedDuration))
	}
	if p.Location.Latitude < -90 || p.Location.Latitude > 90 {
		return NewInvalidPolicyError(fmt.Sprintf("latitude out of range [-90, 90]: %v", p.Location.Latitude))
	}
	if p.Location.Longitude < -180 || p.Location.Longitude > 180 {
		return NewInvalidPolicyError(fmt.Sprintf("longitude out of range [-180, 180]: %v", p.Location.Longitude))
	}
	return nil
}

// waitPolicyJSON is the wire/storage form of WaitPolicy. Durations travel
// as strings ("4h30m") so API payloads stay readable.
type waitPolicyJSON struct {
	Patience           string   `json:"patience"`
	ExpectedDuration   string   `json:"expected_duration"`
	Location           Location `json:"location"`
	OptimizationMetric string   `json:"optimization_metric,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p WaitPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(waitPolicyJSON{
		Patience:           p.Patience.String(),
		ExpectedDuration:   p.ExpectedDuration.String(),
		Location:           p.Location,
		OptimizationMetric: p.OptimizationMetric,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *WaitPolicy) UnmarshalJSON(data []byte) error {
	var raw waitPolicyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	patience, err := time.ParseDuration(raw.Patience)
	if err != nil {
		return fmt.Errorf("parse patience: %w", err)
	}
	expected, err := time.ParseDuration(raw.ExpectedDuration)
	if err != nil {
		return fmt.Errorf("parse expected_duration: %w", err)
	}
	p.Patience = patience
	p.ExpectedDuration = expected
	p.Location = raw.Location
	p.OptimizationMetric = raw.OptimizationMetric
	return nil
}
