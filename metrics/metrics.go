// Package metrics exposes the Prometheus gauges and counters a worker
// or host publishes about queue depth, task outcomes, in-flight task
// counts, and heartbeat refresh attempts by outcome.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups every metric this module publishes under one
// prometheus.Registerer, so a caller can mount Handler() once per
// process rather than relying on the global default registry.
type Registry struct {
	reg *prometheus.Registry

	TasksReserved  prometheus.Counter
	TasksFinished  prometheus.Counter
	TasksFailed    prometheus.Counter
	TasksRequeued  prometheus.Counter
	QueueDepth     *prometheus.GaugeVec
	InFlightTasks  prometheus.Gauge
	HeartbeatTicks *prometheus.CounterVec
}

// New returns a Registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		TasksReserved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vycodi", Subsystem: "worker", Name: "tasks_reserved_total",
			Help: "Total number of tasks successfully reserved from a queue.",
		}),
		TasksFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vycodi", Subsystem: "worker", Name: "tasks_finished_total",
			Help: "Total number of tasks that completed successfully.",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vycodi", Subsystem: "worker", Name: "tasks_failed_total",
			Help: "Total number of tasks that terminally failed.",
		}),
		TasksRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vycodi", Subsystem: "worker", Name: "tasks_requeued_total",
			Help: "Total number of failed tasks sent back onto a pending queue.",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vycodi", Subsystem: "queue", Name: "depth",
			Help: "Current length of a queue's pending list.",
		}, []string{"queue"}),
		InFlightTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vycodi", Subsystem: "worker", Name: "in_flight_tasks",
			Help: "Number of tasks currently reserved by this worker's pool.",
		}),
		HeartbeatTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vycodi", Subsystem: "heartbeat", Name: "ticks_total",
			Help: "Total heartbeat refresh attempts, labeled by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.TasksReserved, m.TasksFinished, m.TasksFailed, m.TasksRequeued,
		m.QueueDepth, m.InFlightTasks, m.HeartbeatTicks,
	)
	return m
}

// Handler returns the http.Handler exposing these metrics in the
// Prometheus text exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
