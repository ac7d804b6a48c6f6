// Package telemetry exposes prometheus metrics for deferral outcomes.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters and gauges the engine reports.
type Metrics struct {
	// StepsImmediate counts steps whose optimal start had already
	// arrived at evaluation time (no suspension).
	StepsImmediate prometheus.Counter

	// StepsDeferred counts steps parked until a future optimal start.
	StepsDeferred prometheus.Counter

	// StepsResumed counts wake-ups that fired and completed a step.
	StepsResumed prometheus.Counter

	// StepsFailed counts failed evaluations by error code.
	StepsFailed *prometheus.CounterVec

	// StepsWaiting tracks how many steps are currently parked.
	StepsWaiting prometheus.Gauge
}

// New registers the carbonshift metrics with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StepsImmediate: factory.NewCounter(prometheus.CounterOpts{
			Name: "carbonshift_steps_immediate_total",
			Help: "Steps completed immediately because the optimal start had already arrived.",
		}),
		StepsDeferred: factory.NewCounter(prometheus.CounterOpts{
			Name: "carbonshift_steps_deferred_total",
			Help: "Steps deferred to a future low-carbon start.",
		}),
		StepsResumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "carbonshift_steps_resumed_total",
			Help: "Deferred steps whose wake-up fired and completed.",
		}),
		StepsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carbonshift_steps_failed_total",
			Help: "Failed step evaluations by error code.",
		}, []string{"code"}),
		StepsWaiting: factory.NewGauge(prometheus.GaugeOpts{
			Name: "carbonshift_steps_waiting",
			Help: "Steps currently parked awaiting their wake-up.",
		}),
	}
}

// Handler returns the /metrics HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
