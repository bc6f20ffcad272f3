package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stockroom"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	allocations   *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	bindConflicts prometheus.Counter
	cacheLookups  *prometheus.CounterVec
	jobRuns       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when it is not nil
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Allocation attempts by tag type and outcome.",
		}, []string{"tag_type", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tag_transitions_total",
			Help:      "Tag lifecycle and condition operations by outcome.",
		}, []string{"operation", "outcome"}),
		bindConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bind_conflicts_total",
			Help:      "Instances claimed concurrently between selection and binding.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_cache_lookups_total",
			Help:      "Inventory summary cache lookups by result.",
		}, []string{"result"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Background job executions by job and outcome.",
		}, []string{"job", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.allocations, m.transitions, m.bindConflicts, m.cacheLookups, m.jobRuns)
	}
	return m
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *Metrics) Allocation(tagType string, err error) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(tagType, outcome(err)).Inc()
}

func (m *Metrics) Transition(operation string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *Metrics) BindConflict() {
	if m == nil {
		return
	}
	m.bindConflicts.Inc()
}

// Cache lookup results
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) JobRun(job string, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome(err)).Inc()
}
