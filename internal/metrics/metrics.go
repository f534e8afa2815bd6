// Package metrics provides instrumentation for the reminder engine.
//
// Two collectors are available: a Prometheus-backed one for production and a
// no-op one for tests or deployments that scrape elsewhere.
package metrics

// Collector receives counters and gauges from the scheduler, dispatcher and
// maintenance loop. Implementations must be safe for concurrent use.
type Collector interface {
	// JobScheduled is called when a reminder job is registered or replaced.
	JobScheduled()
	// JobSkipped is called when trigger computation declined to schedule.
	JobSkipped(reason string)
	// JobFired is called when a timer job is handed to a worker.
	JobFired()
	// JobMisfired is called when a late timer exceeded the misfire grace.
	JobMisfired()
	// SetActiveJobs records the current size of the in-memory job set.
	SetActiveJobs(n int)

	// DeliveryRecorded is called once per channel delivery attempt.
	DeliveryRecorded(channel, status string)

	// FollowupSent is called when a follow-up escalation was dispatched.
	FollowupSent()
	// OverdueMarked is called after a daily sweep marked reminders overdue.
	OverdueMarked(count int)
	// RecurrenceSpawned is called when a successor reminder was created.
	RecurrenceSpawned()
}

// Nop is a Collector that discards everything.
type Nop struct{}

// Compile-time assertion that Nop implements Collector.
var _ Collector = (*Nop)(nil)

// NewNop creates a no-op collector.
func NewNop() *Nop { return &Nop{} }

func (*Nop) JobScheduled()                {}
func (*Nop) JobSkipped(string)            {}
func (*Nop) JobFired()                    {}
func (*Nop) JobMisfired()                 {}
func (*Nop) SetActiveJobs(int)            {}
func (*Nop) DeliveryRecorded(_, _ string) {}
func (*Nop) FollowupSent()                {}
func (*Nop) OverdueMarked(int)            {}
func (*Nop) RecurrenceSpawned()           {}
