package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reminder results recorded by the warranty expiry scan.
const (
	ReminderQueued    = "queued"
	ReminderDuplicate = "duplicate"
	ReminderNoEmail   = "no_email"
)

// Metrics holds the worker's collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	reminders   *prometheus.CounterVec
}

// NewMetrics registers the worker collectors on reg. A nil reg gets a private
// registry, which keeps repeated construction in tests from panicking.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ksadmin",
			Subsystem: "worker",
			Name:      "task_runs_total",
			Help:      "Task runs by type and outcome.",
		}, []string{"task", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ksadmin",
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "Wall time spent in task handlers.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"task"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ksadmin",
			Subsystem: "worker",
			Name:      "task_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per task type.",
		}, []string{"task"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ksadmin",
			Subsystem: "warranty",
			Name:      "reminders_total",
			Help:      "Expiry reminder decisions taken by the scan.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.runs, m.latency, m.lastSuccess, m.reminders)
	return m
}

// Start opens a run of task. Call the returned func with the handler's error;
// it records the outcome and returns err unchanged.
func (m *Metrics) Start(task string) func(error) error {
	began := time.Now()
	return func(err error) error {
		if m == nil {
			return err
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		} else {
			m.lastSuccess.WithLabelValues(task).SetToCurrentTime()
		}
		m.runs.WithLabelValues(task, outcome).Inc()
		m.latency.WithLabelValues(task).Observe(time.Since(began).Seconds())
		return err
	}
}

// Reminder counts one reminder decision.
func (m *Metrics) Reminder(result string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(result).Inc()
}
