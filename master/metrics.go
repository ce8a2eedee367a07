package master

import "github.com/prometheus/client_golang/prometheus"

// Metrics is an optional Prometheus collector a Channel reports task
// outcomes to. Passing a nil *Metrics to NewTCPChannel or
// NewSerialChannel disables collection
// entirely; this mirrors spec.md's Non-goals excluding a mandated
// metrics backend while still letting the ambient stack wire one in for
// deployments that want it (SPEC_FULL.md DOMAIN STACK).
type Metrics struct {
	tasksTotal    *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	linkErrors    prometheus.Counter
	responseTimeouts prometheus.Counter
}

// NewMetrics constructs and registers a Metrics collector against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dnp3",
			Subsystem: "master",
			Name:      "tasks_total",
			Help:      "Completed master tasks by kind and outcome.",
		}, []string{"kind", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dnp3",
			Subsystem: "master",
			Name:      "task_duration_seconds",
			Help:      "Task execution duration from dequeue to completion.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		linkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dnp3",
			Subsystem: "master",
			Name:      "link_errors_total",
			Help:      "Data-link framing errors observed.",
		}),
		responseTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dnp3",
			Subsystem: "master",
			Name:      "response_timeouts_total",
			Help:      "Tasks that exceeded ResponseTimeout waiting for a reply.",
		}),
	}
	reg.MustRegister(m.tasksTotal, m.taskDuration, m.linkErrors, m.responseTimeouts)
	return m
}

func (m *Metrics) observeTask(kind TaskKind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(kind.String(), outcome).Inc()
	m.taskDuration.WithLabelValues(kind.String()).Observe(seconds)
}

func (m *Metrics) incLinkError() {
	if m == nil {
		return
	}
	m.linkErrors.Inc()
}

func (m *Metrics) incResponseTimeout() {
	if m == nil {
		return
	}
	m.responseTimeouts.Inc()
}
