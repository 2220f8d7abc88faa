package recovery

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	componentsRestored  *prometheus.CounterVec
	dispatchDeferrals   *prometheus.CounterVec
	crewTravelMinutes   *prometheus.CounterVec
	recoveryDuration    *prometheus.HistogramVec
	schedulingDeadlocks prometheus.Counter
	costSnapshots       prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.HistogramVec, prometheus.Counter, prometheus.Gauge) {
	restored := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "components_restored_total",
			Help: "Number of components restored to full service",
		},
		[]string{"infra"},
	)
	deferrals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_deferrals_total",
			Help: "Number of dispatch attempts deferred to a later scan",
		},
		[]string{"infra"},
	)
	travel := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crew_travel_minutes_total",
			Help: "Crew travel time accumulated over scheduling runs",
		},
		[]string{"infra"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recovery_duration_seconds",
			Help:    "Repair durations committed by the scheduler",
			Buckets: prometheus.ExponentialBuckets(600, 2, 10),
		},
		[]string{"infra"},
	)
	deadlocks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduling_deadlocks_total",
			Help: "Number of runs aborted because no pending candidate could be dispatched",
		},
	)
	snaps := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cost_snapshots",
			Help: "Transportation cost snapshots recorded by the last run",
		},
	)
	return restored, deferrals, travel, duration, deadlocks, snaps
}

func init() {
	componentsRestored, dispatchDeferrals, crewTravelMinutes, recoveryDuration, schedulingDeadlocks, costSnapshots = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers scheduler metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(componentsRestored, dispatchDeferrals, crewTravelMinutes, recoveryDuration, schedulingDeadlocks, costSnapshots)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	componentsRestored, dispatchDeferrals, crewTravelMinutes, recoveryDuration, schedulingDeadlocks, costSnapshots = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
