package model

import "time"

// OptimizationRequest is the derived input to a single optimizer query.
// Built deterministically from a WaitPolicy and an evaluation instant,
// sent once, then discarded.
type OptimizationRequest struct {
	// StartWindow is the first hour-aligned instant the optimizer may
	// recommend. Always strictly after the evaluation instant.
	StartWindow time.Time

	// EndWindow bounds the search. StartWindow == EndWindow is a valid
	// one-point window.
	EndWindow time.Time

	// DurationHours is the whole-hour reservation for the work, minimum 1.
	DurationHours int

	// Location is the single location the request is scoped to.
	Location Location

	// Metric is the forecast signal to optimize on.
	Metric string
}

// OptimizationOutput carries the optimizer's diagnostics for the chosen
// instant: what the metric would have been at immediate execution, at the
// recommended instant, and at the start of the window.
type OptimizationOutput struct {
	MetricValueImmediateExecution   float64 `json:"metric_value_immediate_execution"`
	MetricValueOptimalExecution     float64 `json:"metric_value_optimal_execution"`
	MetricValueStartWindowExecution float64 `json:"metric_value_start_window_execution"`
	MetricUnit                      string  `json:"metric_unit"`
	OptimizationMetric              string  `json:"optimization_metric"`
	ZoneKey                         string  `json:"zone_key"`
}

// OptimizationResult is the parsed answer to one optimizer query.
type OptimizationResult struct {
	// RecommendedStart is the instant the optimizer recommends the work
	// begin. May already be in the past by the time it is read.
	RecommendedStart time.Time `json:"recommended_start"`

	// Location echoes the provider's coordinate pair, longitude first as
	// the wire format has it.
	Location [2]float64 `json:"location"`

	// Output holds the provider's metric diagnostics, when present.
	Output *OptimizationOutput `json:"output,omitempty"`
}
