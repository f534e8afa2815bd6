package core

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/EscobozaEstrada/mrwhite-sub001/internal/metrics"
)

// Store interface defines the methods required from the storage layer
type Store interface {
	// Owner operations
	GetOwnerByID(id int64) (*Owner, error)
	UpdateOwnerTimezone(id int64, timezone string) error

	// Reminder operations
	CreateReminder(r *Reminder) (*Reminder, error)
	GetReminderByID(id int64) (*Reminder, error)
	UpdateReminder(r *Reminder) error
	DeleteReminder(id int64) error
	ListRemindersByStatus(status Status) ([]*Reminder, error)
	ListRemindersByOwner(ownerID int64) ([]*Reminder, error)
	ListPendingDueBefore(cutoff time.Time) ([]*Reminder, error)
	ListFollowupsDue(now time.Time) ([]*Reminder, error)
	MarkReminderOverdue(id int64) (bool, error)
	ClaimFire(id int64, now time.Time, cooldown time.Duration) (bool, error)
	ClaimFollowup(id int64, now time.Time, nextAt *time.Time, count int) (bool, error)
	ScheduleFollowup(id int64, at time.Time) error
	SetCompletionToken(reminderID int64, token string, created time.Time) error
	CompleteReminder(id int64, completedBy *int64, method string, now time.Time, expectToken *string) (bool, error)
	CancelReminder(id int64) (bool, error)
	ClearExpiredTokens(cutoff time.Time) (int64, error)

	// Notification operations
	CreateNotification(n *Notification) error
	UpdateNotificationStatus(id int64, status NotificationStatus, errMsg string) error
	ListNotificationsByReminder(reminderID int64) ([]*Notification, error)
	PurgeNotificationsBefore(cutoff time.Time) (int64, error)
}

// MessageKind distinguishes the first notification from escalations
type MessageKind string

const (
	MessageReminder MessageKind = "reminder"
	MessageFollowup MessageKind = "followup"
)

// DispatchOutcome is the result of one channel delivery attempt
type DispatchOutcome struct {
	Channel Channel
	Err     error
}

// DispatchResult aggregates the per-channel outcomes of one dispatch
type DispatchResult struct {
	Outcomes []DispatchOutcome
}

// Delivered returns the number of channels that accepted the notification
func (r DispatchResult) Delivered() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the number of channels that reported an error
func (r DispatchResult) Failed() int {
	return len(r.Outcomes) - r.Delivered()
}

// Dispatcher sends a reminder's notification across its enabled channels
type Dispatcher interface {
	Send(ctx context.Context, rem *Reminder, owner *Owner, kind MessageKind) DispatchResult
}

// ScheduleResult is the outcome of a schedule request: either a registered
// job with its fire instant, or a skip with the calculator's reason.
type ScheduleResult struct {
	Scheduled bool
	FireAt    time.Time
	Reason    SkipReason
}

// Jobs is the precision scheduler consumed by the service. Schedule replaces
// any existing job for the same reminder id.
type Jobs interface {
	Schedule(rem *Reminder) ScheduleResult
	Reschedule(rem *Reminder) ScheduleResult
	Unschedule(id int64)
}

// Service owns the reminder lifecycle: creation, edits, completion,
// firing, follow-up escalation and recurrence.
type Service struct {
	store    Store
	dispatch Dispatcher
	jobs     Jobs

	policy       TriggerPolicy
	cooldown     time.Duration // dispatch suppression window
	tokenTTL     time.Duration
	retention    time.Duration // notification history retention
	followupBase time.Duration
	followupMax  time.Duration
	maxFollowups int

	logger  *slog.Logger
	metrics metrics.Collector
	now     func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metrics collector
func WithMetrics(m metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTriggerPolicy overrides the trigger computation policy
func WithTriggerPolicy(p TriggerPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithCooldown sets the dispatch suppression window
func WithCooldown(d time.Duration) Option {
	return func(s *Service) { s.cooldown = d }
}

// WithTokenTTL sets the completion token retention window
func WithTokenTTL(d time.Duration) Option {
	return func(s *Service) { s.tokenTTL = d }
}

// WithRetention sets how long notification history is kept
func WithRetention(d time.Duration) Option {
	return func(s *Service) { s.retention = d }
}

// WithFollowupPolicy sets the escalation backoff: initial interval, cap,
// and the maximum number of follow-ups before the chain stops.
func WithFollowupPolicy(base, max time.Duration, count int) Option {
	return func(s *Service) {
		s.followupBase = base
		s.followupMax = max
		s.maxFollowups = count
	}
}

// WithClock overrides the time source (used in tests)
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new Service instance. The job scheduler is attached
// separately via SetJobs because it needs the service's fire callback.
func NewService(store Store, dispatch Dispatcher, opts ...Option) *Service {
	s := &Service{
		store:        store,
		dispatch:     dispatch,
		policy:       DefaultTriggerPolicy(),
		cooldown:     30 * time.Minute,
		tokenTTL:     7 * 24 * time.Hour,
		retention:    30 * 24 * time.Hour,
		followupBase: 30 * time.Minute,
		followupMax:  8 * time.Hour,
		maxFollowups: 10,
		logger:       slog.Default(),
		metrics:      metrics.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetJobs attaches the precision scheduler
func (s *Service) SetJobs(jobs Jobs) {
	s.jobs = jobs
}

// ReminderDraft holds the caller-supplied fields for a new reminder
type ReminderDraft struct {
	OwnerID            int64
	Title              string
	Description        string
	DueDate            time.Time
	DueTime            *TimeOfDay
	DaysBeforeReminder int
	Recurrence         Recurrence
	RecurrenceInterval int
	RecurrenceEndDate  *time.Time
	MaxOccurrences     *int
	SendPush           bool
	SendEmail          bool
	SendSMS            bool
	Timezone           *TimezoneSnapshot
}

// CreateReminder validates a draft, persists it and schedules its job.
// A skipped schedule is a logged outcome, not an error: the maintenance
// loop will surface the reminder if it never fires.
func (s *Service) CreateReminder(ctx context.Context, draft ReminderDraft) (*Reminder, error) {
	if draft.Title == "" {
		return nil, fmt.Errorf("reminder title cannot be empty")
	}
	if draft.DueDate.IsZero() {
		return nil, fmt.Errorf("reminder due date is required")
	}
	if draft.Recurrence == "" {
		draft.Recurrence = RecurrenceNone
	}
	if !ValidRecurrence(draft.Recurrence) {
		s.logger.Warn("invalid recurrence, defaulting to none", "recurrence", draft.Recurrence)
		draft.Recurrence = RecurrenceNone
	}
	if draft.RecurrenceInterval < 1 {
		draft.RecurrenceInterval = 1
	}
	if draft.MaxOccurrences != nil && *draft.MaxOccurrences < 1 {
		return nil, fmt.Errorf("max occurrences must be positive")
	}

	owner, err := s.store.GetOwnerByID(draft.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}

	rem := &Reminder{
		OwnerID:            draft.OwnerID,
		Title:              draft.Title,
		Description:        draft.Description,
		DueDate:            DateOnly(draft.DueDate),
		DueTime:            cloneTime(draft.DueTime),
		DaysBeforeReminder: draft.DaysBeforeReminder,
		Status:             StatusPending,
		Recurrence:         draft.Recurrence,
		RecurrenceInterval: draft.RecurrenceInterval,
		RecurrenceEndDate:  cloneDate(draft.RecurrenceEndDate),
		MaxOccurrences:     cloneInt(draft.MaxOccurrences),
		SendPush:           draft.SendPush,
		SendEmail:          draft.SendEmail,
		SendSMS:            draft.SendSMS,
		Timezone:           draft.Timezone,
	}
	if rem.Timezone != nil && rem.Timezone.Version == 0 {
		rem.Timezone.Version = SnapshotVersion
	}
	if !rem.SendPush && !rem.SendEmail && !rem.SendSMS {
		rem.SendPush = true
	}

	s.refreshLeadTime(rem, owner.Timezone)

	created, err := s.store.CreateReminder(rem)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}

	if s.jobs != nil {
		if res := s.jobs.Schedule(created); !res.Scheduled {
			s.logger.Warn("reminder left unscheduled", "reminder_id", created.ID, "reason", res.Reason)
		}
	}

	return created, nil
}

// GetReminder retrieves a reminder by id
func (s *Service) GetReminder(id int64) (*Reminder, error) {
	return s.store.GetReminderByID(id)
}

// ListReminders retrieves all reminders for an owner
func (s *Service) ListReminders(ownerID int64) ([]*Reminder, error) {
	return s.store.ListRemindersByOwner(ownerID)
}

// ListNotifications retrieves the delivery history for a reminder
func (s *Service) ListNotifications(reminderID int64) ([]*Notification, error) {
	return s.store.ListNotificationsByReminder(reminderID)
}

// ReminderPatch holds optional fields for a partial update
type ReminderPatch struct {
	Title              *string
	Description        *string
	DueDate            *time.Time
	DueTime            *TimeOfDay
	DaysBeforeReminder *int
	Recurrence         *Recurrence
	RecurrenceInterval *int
	RecurrenceEndDate  *time.Time
	MaxOccurrences     *int
	SendPush           *bool
	SendEmail          *bool
	SendSMS            *bool
	FollowupsStopped   *bool
}

// timingChanged reports whether the patch touches anything that moves the
// fire instant
func (p ReminderPatch) timingChanged() bool {
	return p.DueDate != nil || p.DueTime != nil || p.DaysBeforeReminder != nil ||
		p.Recurrence != nil || p.RecurrenceInterval != nil
}

// UpdateReminder applies a partial update and reschedules the job when a
// timing field changed
func (s *Service) UpdateReminder(ctx context.Context, id int64, patch ReminderPatch) (*Reminder, error) {
	rem, err := s.store.GetReminderByID(id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		if *patch.Title == "" {
			return nil, fmt.Errorf("reminder title cannot be empty")
		}
		rem.Title = *patch.Title
	}
	if patch.Description != nil {
		rem.Description = *patch.Description
	}
	if patch.DueDate != nil {
		rem.DueDate = DateOnly(*patch.DueDate)
	}
	if patch.DueTime != nil {
		rem.DueTime = cloneTime(patch.DueTime)
	}
	if patch.DaysBeforeReminder != nil {
		rem.DaysBeforeReminder = *patch.DaysBeforeReminder
	}
	if patch.Recurrence != nil {
		if !ValidRecurrence(*patch.Recurrence) {
			return nil, fmt.Errorf("invalid recurrence: %s", *patch.Recurrence)
		}
		rem.Recurrence = *patch.Recurrence
	}
	if patch.RecurrenceInterval != nil {
		if *patch.RecurrenceInterval < 1 {
			return nil, fmt.Errorf("recurrence interval must be positive")
		}
		rem.RecurrenceInterval = *patch.RecurrenceInterval
	}
	if patch.RecurrenceEndDate != nil {
		rem.RecurrenceEndDate = cloneDate(patch.RecurrenceEndDate)
	}
	if patch.MaxOccurrences != nil {
		rem.MaxOccurrences = cloneInt(patch.MaxOccurrences)
	}
	if patch.SendPush != nil {
		rem.SendPush = *patch.SendPush
	}
	if patch.SendEmail != nil {
		rem.SendEmail = *patch.SendEmail
	}
	if patch.SendSMS != nil {
		rem.SendSMS = *patch.SendSMS
	}
	if patch.FollowupsStopped != nil {
		rem.FollowupsStopped = *patch.FollowupsStopped
	}

	if patch.timingChanged() {
		ownerTZ := ""
		if owner, err := s.store.GetOwnerByID(rem.OwnerID); err == nil {
			ownerTZ = owner.Timezone
		}
		s.refreshLeadTime(rem, ownerTZ)
	}

	if err := s.store.UpdateReminder(rem); err != nil {
		return nil, fmt.Errorf("failed to update reminder: %w", err)
	}

	if patch.timingChanged() && rem.Status == StatusPending && s.jobs != nil {
		if res := s.jobs.Reschedule(rem); !res.Scheduled {
			s.logger.Warn("reminder left unscheduled after edit", "reminder_id", rem.ID, "reason", res.Reason)
		}
	}

	return rem, nil
}

// DeleteReminder cancels the pending job and removes the reminder and its
// notification history
func (s *Service) DeleteReminder(ctx context.Context, id int64) error {
	if s.jobs != nil {
		s.jobs.Unschedule(id)
	}
	return s.store.DeleteReminder(id)
}

// CancelReminder cancels the job and moves the reminder to cancelled
func (s *Service) CancelReminder(ctx context.Context, id int64) error {
	if s.jobs != nil {
		s.jobs.Unschedule(id)
	}
	ok, err := s.store.CancelReminder(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyCompleted
	}
	return nil
}

// CompleteReminder marks a reminder completed, cancels its job and, for
// recurring reminders, creates and schedules the successor occurrence
func (s *Service) CompleteReminder(ctx context.Context, id int64, completedBy *int64, method string) (*Reminder, error) {
	rem, err := s.store.GetReminderByID(id)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.CompleteReminder(id, completedBy, method, s.now().UTC(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to complete reminder: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyCompleted
	}

	if s.jobs != nil {
		s.jobs.Unschedule(id)
	}

	if err := s.spawnSuccessor(ctx, rem); err != nil {
		// The completion stands; the successor is retried by the caller
		// or created manually.
		s.logger.Error("failed to create successor reminder", "reminder_id", id, "error", err)
	}

	return s.store.GetReminderByID(id)
}

// CompleteByToken validates a single-use completion token and performs the
// same completion path. Used by the email "mark done" link.
func (s *Service) CompleteByToken(ctx context.Context, id int64, token, method string) (*Reminder, error) {
	rem, err := s.store.GetReminderByID(id)
	if err != nil {
		return nil, err
	}
	if rem.CompletionToken == nil || rem.TokenCreated == nil || token == "" {
		return nil, ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(*rem.CompletionToken), []byte(token)) != 1 {
		return nil, ErrInvalidToken
	}
	if s.now().UTC().Sub(*rem.TokenCreated) > s.tokenTTL {
		return nil, ErrInvalidToken
	}

	// The conditional update consumes the token: a concurrent second use
	// loses the race and gets ErrInvalidToken.
	ok, err := s.store.CompleteReminder(id, nil, method, s.now().UTC(), rem.CompletionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to complete reminder: %w", err)
	}
	if !ok {
		return nil, ErrInvalidToken
	}

	if s.jobs != nil {
		s.jobs.Unschedule(id)
	}

	if err := s.spawnSuccessor(ctx, rem); err != nil {
		s.logger.Error("failed to create successor reminder", "reminder_id", id, "error", err)
	}

	return s.store.GetReminderByID(id)
}

// MintCompletionToken issues a fresh single-use token for a reminder and
// persists it, replacing any previous token
func (s *Service) MintCompletionToken(reminderID int64) (string, error) {
	token := uuid.NewString()
	if err := s.store.SetCompletionToken(reminderID, token, s.now().UTC()); err != nil {
		return "", fmt.Errorf("failed to store completion token: %w", err)
	}
	return token, nil
}

// ComputeTrigger resolves the owner's timezone, refreshes the lead-time
// clamp and runs the pure calculator, persisting any self-healing hints it
// returns. This is the compute callback handed to the job scheduler.
func (s *Service) ComputeTrigger(rem *Reminder) TriggerResult {
	ownerTZ := ""
	owner, err := s.store.GetOwnerByID(rem.OwnerID)
	if err == nil {
		ownerTZ = owner.Timezone
	} else {
		s.logger.Warn("owner lookup failed, using default timezone", "reminder_id", rem.ID, "error", err)
	}

	s.refreshLeadTime(rem, ownerTZ)

	res := ComputeTrigger(rem, ownerTZ, s.now().UTC(), s.policy)

	if res.CorrectedTimezone != "" && owner != nil {
		s.logger.Warn("correcting invalid owner timezone", "owner_id", owner.ID, "was", owner.Timezone, "now", res.CorrectedTimezone)
		if err := s.store.UpdateOwnerTimezone(owner.ID, res.CorrectedTimezone); err != nil {
			s.logger.Error("failed to persist timezone correction", "owner_id", owner.ID, "error", err)
		}
	}

	if res.AdjustedDate != nil {
		if res.AdjustedLeadTime {
			rem.ReminderDate = res.AdjustedDate
		} else {
			rem.DueDate = *res.AdjustedDate
		}
		if err := s.store.UpdateReminder(rem); err != nil {
			s.logger.Error("failed to persist adjusted date", "reminder_id", rem.ID, "error", err)
		}
	}

	return res
}

// HandleFire is the worker callback invoked when a reminder's timer
// elapses. It reloads fresh state, claims the delivery window atomically
// and dispatches. A lost claim (concurrent fire, completed meanwhile,
// still inside the cooldown) is a silent no-op.
func (s *Service) HandleFire(ctx context.Context, reminderID int64, scheduledFor time.Time) {
	rem, err := s.store.GetReminderByID(reminderID)
	if err != nil {
		s.logger.Error("fire aborted: reminder reload failed", "reminder_id", reminderID, "error", err)
		return
	}
	if rem.Status != StatusPending {
		s.logger.Debug("fire skipped: reminder no longer pending", "reminder_id", reminderID, "status", rem.Status)
		return
	}

	// Everything fallible happens before the claim: a store error here
	// aborts with the reminder untouched, so a later retry or the
	// maintenance pass can still deliver.
	owner, err := s.store.GetOwnerByID(rem.OwnerID)
	if err != nil {
		s.logger.Error("fire aborted: owner load failed", "reminder_id", reminderID, "error", err)
		return
	}

	now := s.now().UTC()
	claimed, err := s.store.ClaimFire(reminderID, now, s.cooldown)
	if err != nil {
		s.logger.Error("fire aborted: claim failed", "reminder_id", reminderID, "error", err)
		return
	}
	if !claimed {
		s.logger.Debug("fire skipped: delivery window already claimed", "reminder_id", reminderID)
		return
	}

	result := s.dispatch.Send(ctx, rem, owner, MessageReminder)
	for _, o := range result.Outcomes {
		if o.Err != nil {
			s.logger.Error("channel delivery failed", "reminder_id", reminderID, "channel", o.Channel, "error", o.Err)
		}
	}
	s.logger.Info("reminder fired", "reminder_id", reminderID,
		"scheduled_for", scheduledFor, "delivered", result.Delivered(), "failed", result.Failed())

	// Start the escalation chain unless the owner opted out.
	if !rem.FollowupsStopped {
		if err := s.store.ScheduleFollowup(reminderID, now.Add(s.followupBase)); err != nil {
			s.logger.Error("failed to schedule follow-up", "reminder_id", reminderID, "error", err)
		}
	}
}

// RestoreJobs re-schedules every pending reminder from the store. Jobs are
// never persisted; this is the only recovery mechanism across restarts.
func (s *Service) RestoreJobs(ctx context.Context) (int, error) {
	if s.jobs == nil {
		return 0, fmt.Errorf("no job scheduler attached")
	}
	pending, err := s.store.ListRemindersByStatus(StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending reminders: %w", err)
	}

	restored := 0
	for _, rem := range pending {
		if res := s.jobs.Schedule(rem); res.Scheduled {
			restored++
		} else {
			s.logger.Warn("pending reminder not restorable", "reminder_id", rem.ID, "reason", res.Reason)
		}
	}
	s.logger.Info("job set rebuilt from store", "pending", len(pending), "scheduled", restored)
	return restored, nil
}

// SweepOverdue marks pending reminders whose due date passed in the owner's
// timezone. Runs daily as a safety net under the precision scheduler.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	// Over-fetch with a generous UTC cutoff, then decide per owner.
	candidates, err := s.store.ListPendingDueBefore(now.Add(48 * time.Hour))
	if err != nil {
		return 0, fmt.Errorf("failed to list due reminders: %w", err)
	}

	marked := 0
	for _, rem := range candidates {
		ownerTZ := ""
		if owner, err := s.store.GetOwnerByID(rem.OwnerID); err == nil {
			ownerTZ = owner.Timezone
		}
		loc, _ := resolveLocation(rem, ownerTZ, s.policy)
		today := DateOnly(now.In(loc))
		if !DateOnly(rem.DueDate).Before(today) {
			continue
		}
		ok, err := s.store.MarkReminderOverdue(rem.ID)
		if err != nil {
			s.logger.Error("failed to mark reminder overdue", "reminder_id", rem.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		marked++

		// A reminder the sweep catches had no fired job (downtime, a
		// skipped computation), so no follow-up chain exists yet. Seed it
		// so the next follow-up pass attempts delivery instead of letting
		// the notification drop.
		if !rem.FollowupsStopped && rem.NextFollowupAt == nil {
			if err := s.store.ScheduleFollowup(rem.ID, now); err != nil {
				s.logger.Error("failed to seed follow-up for overdue reminder", "reminder_id", rem.ID, "error", err)
			}
		}
	}
	if marked > 0 {
		s.logger.Info("overdue sweep complete", "marked", marked)
	}
	s.metrics.OverdueMarked(marked)
	return marked, nil
}

// RunFollowups sends escalation notifications for unacknowledged reminders
// whose next follow-up instant has elapsed, advancing each chain with a
// doubling, capped backoff
func (s *Service) RunFollowups(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.store.ListFollowupsDue(now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due follow-ups: %w", err)
	}

	sent := 0
	for _, rem := range due {
		count := rem.FollowupCount + 1
		var nextAt *time.Time
		if count < s.maxFollowups {
			n := now.Add(FollowupBackoff(s.followupBase, s.followupMax, count+1))
			nextAt = &n
		}

		claimed, err := s.store.ClaimFollowup(rem.ID, now, nextAt, count)
		if err != nil {
			s.logger.Error("follow-up claim failed", "reminder_id", rem.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		owner, err := s.store.GetOwnerByID(rem.OwnerID)
		if err != nil {
			s.logger.Error("follow-up aborted: owner load failed", "reminder_id", rem.ID, "error", err)
			continue
		}

		result := s.dispatch.Send(ctx, rem, owner, MessageFollowup)
		s.logger.Info("follow-up sent", "reminder_id", rem.ID, "count", count,
			"delivered", result.Delivered(), "failed", result.Failed())
		s.metrics.FollowupSent()
		sent++
	}
	return sent, nil
}

// PurgeExpired removes stale notification history and expired completion
// tokens
func (s *Service) PurgeExpired(ctx context.Context) error {
	now := s.now().UTC()

	purged, err := s.store.PurgeNotificationsBefore(now.Add(-s.retention))
	if err != nil {
		return fmt.Errorf("failed to purge notifications: %w", err)
	}
	cleared, err := s.store.ClearExpiredTokens(now.Add(-s.tokenTTL))
	if err != nil {
		return fmt.Errorf("failed to clear expired tokens: %w", err)
	}
	if purged > 0 || cleared > 0 {
		s.logger.Info("retention purge complete", "notifications", purged, "tokens", cleared)
	}
	return nil
}

// FollowupBackoff returns the doubling, capped interval before follow-up
// number count (1-based)
func FollowupBackoff(base, max time.Duration, count int) time.Duration {
	d := base
	for i := 1; i < count; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// spawnSuccessor creates and schedules the next occurrence of a completed
// recurring reminder
func (s *Service) spawnSuccessor(ctx context.Context, rem *Reminder) error {
	if !rem.IsRecurring() {
		return nil
	}

	ownerTZ := ""
	if owner, err := s.store.GetOwnerByID(rem.OwnerID); err == nil {
		ownerTZ = owner.Timezone
	}
	loc, _ := resolveLocation(rem, ownerTZ, s.policy)
	today := DateOnly(s.now().UTC().In(loc))

	next := NextOccurrence(rem, today)
	if next == nil {
		return nil
	}

	created, err := s.store.CreateReminder(next)
	if err != nil {
		return fmt.Errorf("failed to persist successor: %w", err)
	}
	s.metrics.RecurrenceSpawned()

	if s.jobs != nil {
		if res := s.jobs.Schedule(created); !res.Scheduled {
			s.logger.Warn("successor left unscheduled", "reminder_id", created.ID, "reason", res.Reason)
		}
	}
	s.logger.Info("successor reminder created", "reminder_id", created.ID,
		"predecessor_id", rem.ID, "occurrence", created.CurrentOccurrence)
	return nil
}

// refreshLeadTime recomputes the clamped lead-time fields so the reminder
// date never resolves to a date before today in the owner's timezone
func (s *Service) refreshLeadTime(rem *Reminder, ownerTZ string) {
	if rem.DaysBeforeReminder <= 0 {
		rem.ReminderDate = nil
		rem.ReminderTime = nil
		return
	}
	loc, _ := resolveLocation(rem, ownerTZ, s.policy)
	today := DateOnly(s.now().UTC().In(loc))
	rd := ComputeLeadTime(rem.DueDate, rem.DaysBeforeReminder, today)
	rem.ReminderDate = &rd
	if rem.ReminderTime == nil {
		if rem.DueTime != nil {
			rem.ReminderTime = cloneTime(rem.DueTime)
		} else {
			t := s.policy.FallbackTime
			rem.ReminderTime = &t
		}
	}
}
