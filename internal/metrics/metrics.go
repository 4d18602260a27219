package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devstack"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	starts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "starts_total",
			Help:      "Number of successful starts.",
		}, []string{"kind", "id"},
	)
	stops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stops_total",
			Help:      "Number of stops.",
		}, []string{"kind", "id"},
	)
	autoRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "auto_restarts_total",
			Help:      "Number of auto restart attempts.",
		}, []string{"id"},
	)
	healthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "health_failures_total",
			Help:      "Number of failed health checks after retries.",
		}, []string{"id"},
	)
	adoptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "adoptions_total",
			Help:      "Number of externally started processes adopted by port.",
		}, []string{"id"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Number of state transitions.",
		}, []string{"kind", "id", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_state",
			Help:      "Current state (1 = active state, 0 = inactive).",
		}, []string{"kind", "id", "state"},
	)
	buildMilestones = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "project",
			Name:      "build_milestones_total",
			Help:      "Classified build output milestones.",
		}, []string{"id", "milestone"},
	)
	staleKilled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "stale_killed_total",
			Help:      "Processes from a previous session killed at startup.",
		},
	)
)

func collectors() []prometheus.Collector {
	cs := []prometheus.Collector{
		starts, stops, autoRestarts, healthFailures, adoptions,
		stateTransitions, currentStates, buildMilestones, staleKilled,
	}
	return append(cs, resourceCollectors...)
}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers no-op until Register succeeds.

func IncStart(kind, id string) {
	if regOK.Load() {
		starts.WithLabelValues(kind, id).Inc()
	}
}

func IncStop(kind, id string) {
	if regOK.Load() {
		stops.WithLabelValues(kind, id).Inc()
	}
}

func IncAutoRestart(id string) {
	if regOK.Load() {
		autoRestarts.WithLabelValues(id).Inc()
	}
}

func IncHealthFailure(id string) {
	if regOK.Load() {
		healthFailures.WithLabelValues(id).Inc()
	}
}

func IncAdoption(id string) {
	if regOK.Load() {
		adoptions.WithLabelValues(id).Inc()
	}
}

func IncMilestone(id, milestone string) {
	if regOK.Load() {
		buildMilestones.WithLabelValues(id, milestone).Inc()
	}
}

func AddStaleKilled(n int) {
	if regOK.Load() && n > 0 {
		staleKilled.Add(float64(n))
	}
}

// RecordTransition counts from->to and moves the current-state gauge.
func RecordTransition(kind, id, from, to string) {
	if !regOK.Load() || from == to {
		return
	}
	stateTransitions.WithLabelValues(kind, id, from, to).Inc()
	if from != "" {
		currentStates.WithLabelValues(kind, id, from).Set(0)
	}
	currentStates.WithLabelValues(kind, id, to).Set(1)
}
