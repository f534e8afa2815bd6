package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus implements Collector on top of prometheus counters and gauges.
type Prometheus struct {
	jobsScheduled prometheus.Counter
	jobsSkipped   *prometheus.CounterVec
	jobsFired     prometheus.Counter
	jobsMisfired  prometheus.Counter
	activeJobs    prometheus.Gauge

	deliveries *prometheus.CounterVec

	followups  prometheus.Counter
	overdue    prometheus.Counter
	successors prometheus.Counter
}

// Compile-time assertion that Prometheus implements Collector.
var _ Collector = (*Prometheus)(nil)

// NewPrometheus creates a collector registered on reg. Pass
// prometheus.DefaultRegisterer to expose the metrics on the default
// /metrics handler.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		jobsScheduled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "jobs_scheduled_total",
			Help:      "Reminder jobs registered or replaced in the scheduler.",
		}),
		jobsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "jobs_skipped_total",
			Help:      "Trigger computations that declined to schedule, by reason.",
		}, []string{"reason"}),
		jobsFired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "jobs_fired_total",
			Help:      "Timer jobs handed to a worker.",
		}),
		jobsMisfired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "jobs_misfired_total",
			Help:      "Timer jobs discarded for exceeding the misfire grace.",
		}),
		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "reminders",
			Name:      "active_jobs",
			Help:      "Current size of the in-memory job set.",
		}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "deliveries_total",
			Help:      "Channel delivery attempts by channel and outcome.",
		}, []string{"channel", "status"}),
		followups: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "followups_sent_total",
			Help:      "Follow-up escalations dispatched.",
		}),
		overdue: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "overdue_marked_total",
			Help:      "Reminders marked overdue by the daily sweep.",
		}),
		successors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "successors_created_total",
			Help:      "Successor reminders created by the recurrence engine.",
		}),
	}
}

func (p *Prometheus) JobScheduled()            { p.jobsScheduled.Inc() }
func (p *Prometheus) JobSkipped(reason string) { p.jobsSkipped.WithLabelValues(reason).Inc() }
func (p *Prometheus) JobFired()                { p.jobsFired.Inc() }
func (p *Prometheus) JobMisfired()             { p.jobsMisfired.Inc() }
func (p *Prometheus) SetActiveJobs(n int)      { p.activeJobs.Set(float64(n)) }

func (p *Prometheus) DeliveryRecorded(channel, status string) {
	p.deliveries.WithLabelValues(channel, status).Inc()
}

func (p *Prometheus) FollowupSent()     { p.followups.Inc() }
func (p *Prometheus) OverdueMarked(n int) {
	p.overdue.Add(float64(n))
}
func (p *Prometheus) RecurrenceSpawned() { p.successors.Inc() }
