// Package schedule runs one in-memory timer per pending reminder and a
// cron-driven maintenance loop. Jobs are never persisted; the set is
// rebuilt from the store on startup.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/EscobozaEstrada/mrwhite-sub001/internal/core"
	"github.com/EscobozaEstrada/mrwhite-sub001/internal/metrics"
)

// ComputeFunc resolves a reminder to its trigger result
type ComputeFunc func(rem *core.Reminder) core.TriggerResult

// FireFunc is invoked by a worker when a reminder's timer elapses
type FireFunc func(ctx context.Context, reminderID int64, scheduledFor time.Time)

// job is one armed timer. The timer is attached after the map store, so
// stop has to tolerate a not-yet-set timer.
type job struct {
	id     int64
	fireAt time.Time

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (j *job) setTimer(t *time.Timer) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stopped {
		t.Stop()
		return
	}
	j.timer = t
}

func (j *job) stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopped = true
	if j.timer != nil {
		j.timer.Stop()
	}
}

// Scheduler maintains the timer set and dispatches elapsed jobs to a
// bounded worker pool
type Scheduler struct {
	compute ComputeFunc
	fire    FireFunc

	jobs *xsync.Map[int64, *job]
	sem  chan struct{}
	wg   sync.WaitGroup

	misfireGrace time.Duration
	logger       *slog.Logger
	metrics      metrics.Collector
	now          func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithWorkers bounds the number of concurrent fire callbacks
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

// WithMisfireGrace sets how late an elapsed timer may run before the fire
// is dropped and left to the maintenance sweep
func WithMisfireGrace(d time.Duration) Option {
	return func(s *Scheduler) { s.misfireGrace = d }
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics sets the metrics collector
func WithMetrics(m metrics.Collector) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock overrides the time source (used in tests)
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a Scheduler. Call Start before scheduling jobs.
func NewScheduler(compute ComputeFunc, fire FireFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		compute:      compute,
		fire:         fire,
		jobs:         xsync.NewMap[int64, *job](),
		sem:          make(chan struct{}, 8),
		misfireGrace: 5 * time.Minute,
		logger:       slog.Default(),
		metrics:      metrics.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the scheduler to its lifecycle context
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.logger.Info("scheduler started", "workers", cap(s.sem), "misfire_grace", s.misfireGrace)
}

// Stop cancels in-flight work, disarms every timer and waits for running
// workers up to the context deadline
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	s.jobs.Range(func(id int64, j *job) bool {
		j.stop()
		s.jobs.Delete(id)
		return true
	})
	s.metrics.SetActiveJobs(0)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule computes the reminder's trigger and arms a timer for it,
// replacing any existing job for the same reminder. A skipped computation
// leaves no job armed.
func (s *Scheduler) Schedule(rem *core.Reminder) core.ScheduleResult {
	res := s.compute(rem)
	if res.Skipped {
		// An edit can turn a scheduled reminder into a skipped one.
		s.Unschedule(rem.ID)
		s.logger.Debug("schedule skipped", "reminder_id", rem.ID, "reason", res.Reason)
		s.metrics.JobSkipped(string(res.Reason))
		return core.ScheduleResult{Scheduled: false, Reason: res.Reason}
	}

	j := &job{id: rem.ID, fireAt: res.FireAt}
	if prev, loaded := s.jobs.LoadAndStore(rem.ID, j); loaded {
		prev.stop()
	}

	delay := res.FireAt.Sub(s.now().UTC())
	if delay < 0 {
		delay = 0
	}
	j.setTimer(time.AfterFunc(delay, func() { s.elapsed(j) }))

	s.logger.Debug("job armed", "reminder_id", rem.ID, "fire_at", res.FireAt, "delay", delay)
	s.metrics.JobScheduled()
	s.metrics.SetActiveJobs(s.jobs.Size())
	return core.ScheduleResult{Scheduled: true, FireAt: res.FireAt}
}

// Reschedule recomputes and re-arms the reminder's job
func (s *Scheduler) Reschedule(rem *core.Reminder) core.ScheduleResult {
	return s.Schedule(rem)
}

// Unschedule disarms and forgets the reminder's job, if any
func (s *Scheduler) Unschedule(id int64) {
	if j, loaded := s.jobs.LoadAndDelete(id); loaded {
		j.stop()
		s.logger.Debug("job disarmed", "reminder_id", id)
		s.metrics.SetActiveJobs(s.jobs.Size())
	}
}

// Jobs returns the number of armed jobs
func (s *Scheduler) Jobs() int {
	return s.jobs.Size()
}

// elapsed runs on the timer goroutine. The identity-checked delete makes
// a stale timer for a replaced job a no-op.
func (s *Scheduler) elapsed(j *job) {
	deleted := false
	s.jobs.Compute(j.id, func(old *job, loaded bool) (*job, xsync.ComputeOp) {
		if loaded && old == j {
			deleted = true
			return nil, xsync.DeleteOp
		}
		return old, xsync.CancelOp
	})
	if !deleted {
		return
	}
	s.metrics.SetActiveJobs(s.jobs.Size())

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if lag := s.now().UTC().Sub(j.fireAt); lag > s.misfireGrace {
		s.logger.Warn("timer misfired past grace, leaving to maintenance sweep",
			"reminder_id", j.id, "fire_at", j.fireAt, "lag", lag)
		s.metrics.JobMisfired()
		return
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()
		s.fire(ctx, j.id, j.fireAt)
		s.metrics.JobFired()
	}()
}
