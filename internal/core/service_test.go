package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store with the same conditional-update
// semantics as the SQLite implementation
type fakeStore struct {
	mu            sync.Mutex
	nextID        int64
	owners        map[int64]*Owner
	reminders     map[int64]*Reminder
	notifications []*Notification

	// failOwnerLoads makes the next N GetOwnerByID calls return an error.
	failOwnerLoads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		owners:    make(map[int64]*Owner),
		reminders: make(map[int64]*Reminder),
	}
}

func (f *fakeStore) addOwner(o *Owner) *Owner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	o.ID = f.nextID
	f.owners[o.ID] = o
	return o
}

func (f *fakeStore) GetOwnerByID(id int64) (*Owner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOwnerLoads > 0 {
		f.failOwnerLoads--
		return nil, errors.New("owner load failed")
	}
	o, ok := f.owners[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *o
	return &c, nil
}

func (f *fakeStore) UpdateOwnerTimezone(id int64, timezone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.owners[id]
	if !ok {
		return ErrNotFound
	}
	o.Timezone = timezone
	return nil
}

func (f *fakeStore) CreateReminder(r *Reminder) (*Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := *r
	c.ID = f.nextID
	if c.Status == "" {
		c.Status = StatusPending
	}
	if c.CurrentOccurrence < 1 {
		c.CurrentOccurrence = 1
	}
	f.reminders[c.ID] = &c
	out := c
	return &out, nil
}

func (f *fakeStore) GetReminderByID(id int64) (*Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *r
	return &c, nil
}

func (f *fakeStore) UpdateReminder(r *Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reminders[r.ID]; !ok {
		return ErrNotFound
	}
	c := *r
	f.reminders[r.ID] = &c
	return nil
}

func (f *fakeStore) DeleteReminder(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reminders[id]; !ok {
		return ErrNotFound
	}
	delete(f.reminders, id)
	return nil
}

func (f *fakeStore) ListRemindersByStatus(status Status) ([]*Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Reminder
	for _, r := range f.reminders {
		if r.Status == status {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeStore) ListRemindersByOwner(ownerID int64) ([]*Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Reminder
	for _, r := range f.reminders {
		if r.OwnerID == ownerID {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPendingDueBefore(cutoff time.Time) ([]*Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Reminder
	for _, r := range f.reminders {
		if r.Status == StatusPending && !DateOnly(r.DueDate).After(DateOnly(cutoff)) {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeStore) ListFollowupsDue(now time.Time) ([]*Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Reminder
	for _, r := range f.reminders {
		if (r.Status == StatusPending || r.Status == StatusOverdue) &&
			!r.FollowupsStopped && r.NextFollowupAt != nil && !r.NextFollowupAt.After(now) {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkReminderOverdue(id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok || r.Status != StatusPending {
		return false, nil
	}
	r.Status = StatusOverdue
	return true, nil
}

func (f *fakeStore) ClaimFire(id int64, now time.Time, cooldown time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok || r.Status != StatusPending {
		return false, nil
	}
	if r.LastNotificationSent != nil && r.LastNotificationSent.After(now.Add(-cooldown)) {
		return false, nil
	}
	sent := now
	r.LastNotificationSent = &sent
	return true, nil
}

func (f *fakeStore) ClaimFollowup(id int64, now time.Time, nextAt *time.Time, count int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok || (r.Status != StatusPending && r.Status != StatusOverdue) ||
		r.FollowupsStopped || r.NextFollowupAt == nil || r.NextFollowupAt.After(now) {
		return false, nil
	}
	sent := now
	r.LastNotificationSent = &sent
	r.FollowupCount = count
	r.NextFollowupAt = nextAt
	return true, nil
}

func (f *fakeStore) ScheduleFollowup(id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok {
		return ErrNotFound
	}
	if !r.FollowupsStopped {
		r.NextFollowupAt = &at
	}
	return nil
}

func (f *fakeStore) SetCompletionToken(reminderID int64, token string, created time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[reminderID]
	if !ok {
		return ErrNotFound
	}
	r.CompletionToken = &token
	r.TokenCreated = &created
	return nil
}

func (f *fakeStore) CompleteReminder(id int64, completedBy *int64, method string, now time.Time, expectToken *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok || (r.Status != StatusPending && r.Status != StatusOverdue) {
		return false, nil
	}
	if expectToken != nil && (r.CompletionToken == nil || *r.CompletionToken != *expectToken) {
		return false, nil
	}
	r.Status = StatusCompleted
	r.CompletedAt = &now
	r.CompletedBy = completedBy
	r.CompletionMethod = method
	r.CompletionToken = nil
	r.TokenCreated = nil
	r.NextFollowupAt = nil
	return true, nil
}

func (f *fakeStore) CancelReminder(id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok || (r.Status != StatusPending && r.Status != StatusOverdue) {
		return false, nil
	}
	r.Status = StatusCancelled
	r.NextFollowupAt = nil
	return true, nil
}

func (f *fakeStore) ClearExpiredTokens(cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.reminders {
		if r.TokenCreated != nil && !r.TokenCreated.After(cutoff) {
			r.CompletionToken = nil
			r.TokenCreated = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateNotification(n *Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n.ID = f.nextID
	c := *n
	f.notifications = append(f.notifications, &c)
	return nil
}

func (f *fakeStore) UpdateNotificationStatus(id int64, status NotificationStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notifications {
		if n.ID == id {
			n.Status = status
			n.Error = errMsg
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) ListNotificationsByReminder(reminderID int64) ([]*Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Notification
	for _, n := range f.notifications {
		if n.ReminderID == reminderID {
			c := *n
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeStore) PurgeNotificationsBefore(cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*Notification
	var n int64
	for _, item := range f.notifications {
		if item.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, item)
	}
	f.notifications = kept
	return n, nil
}

// fakeDispatch records Send calls and succeeds on every channel
type fakeDispatch struct {
	mu    sync.Mutex
	calls []MessageKind
}

func (d *fakeDispatch) Send(ctx context.Context, rem *Reminder, owner *Owner, kind MessageKind) DispatchResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, kind)
	var res DispatchResult
	for _, ch := range rem.Channels() {
		res.Outcomes = append(res.Outcomes, DispatchOutcome{Channel: ch})
	}
	return res
}

func (d *fakeDispatch) sends() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// fakeJobs records schedule and unschedule calls
type fakeJobs struct {
	mu          sync.Mutex
	scheduled   []int64
	unscheduled []int64
}

func (j *fakeJobs) Schedule(rem *Reminder) ScheduleResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.scheduled = append(j.scheduled, rem.ID)
	return ScheduleResult{Scheduled: true, FireAt: time.Now()}
}

func (j *fakeJobs) Reschedule(rem *Reminder) ScheduleResult {
	return j.Schedule(rem)
}

func (j *fakeJobs) Unschedule(id int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.unscheduled = append(j.unscheduled, id)
}

type serviceHarness struct {
	store    *fakeStore
	dispatch *fakeDispatch
	jobs     *fakeJobs
	svc      *Service
	owner    *Owner
	now      time.Time
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()
	h := &serviceHarness{
		store:    newFakeStore(),
		dispatch: &fakeDispatch{},
		jobs:     &fakeJobs{},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.owner = h.store.addOwner(&Owner{Name: "Dana", Email: "dana@example.com", Timezone: "Europe/Berlin", Locale: "en"})
	h.svc = NewService(h.store, h.dispatch,
		WithClock(func() time.Time { return h.now }),
		WithCooldown(30*time.Minute),
		WithTokenTTL(7*24*time.Hour),
		WithFollowupPolicy(30*time.Minute, 8*time.Hour, 3),
	)
	h.svc.SetJobs(h.jobs)
	return h
}

func (h *serviceHarness) draft() ReminderDraft {
	return ReminderDraft{
		OwnerID:  h.owner.ID,
		Title:    "Vet appointment",
		DueDate:  date(2025, 6, 10),
		DueTime:  tod(9, 0),
		SendPush: true,
	}
}

func TestCreateReminderSchedulesJob(t *testing.T) {
	h := newServiceHarness(t)

	rem, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rem.Status)
	assert.Equal(t, []int64{rem.ID}, h.jobs.scheduled)
}

func TestCreateReminderValidation(t *testing.T) {
	h := newServiceHarness(t)

	d := h.draft()
	d.Title = ""
	_, err := h.svc.CreateReminder(context.Background(), d)
	assert.Error(t, err)

	d = h.draft()
	d.DueDate = time.Time{}
	_, err = h.svc.CreateReminder(context.Background(), d)
	assert.Error(t, err)

	d = h.draft()
	d.OwnerID = 9999
	_, err = h.svc.CreateReminder(context.Background(), d)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateReminderDefaultsToPush(t *testing.T) {
	h := newServiceHarness(t)

	d := h.draft()
	d.SendPush = false
	rem, err := h.svc.CreateReminder(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, rem.SendPush)
}

func TestCreateReminderComputesLeadTime(t *testing.T) {
	h := newServiceHarness(t)

	d := h.draft()
	d.DaysBeforeReminder = 3
	rem, err := h.svc.CreateReminder(context.Background(), d)
	require.NoError(t, err)
	require.NotNil(t, rem.ReminderDate)
	assert.Equal(t, date(2025, 6, 7), *rem.ReminderDate)
	assert.Equal(t, tod(9, 0), rem.ReminderTime)

	// A lead window that already started clamps to today.
	d = h.draft()
	d.DueDate = date(2025, 6, 2)
	d.DaysBeforeReminder = 5
	rem, err = h.svc.CreateReminder(context.Background(), d)
	require.NoError(t, err)
	require.NotNil(t, rem.ReminderDate)
	assert.Equal(t, date(2025, 6, 1), *rem.ReminderDate)
}

func TestUpdateReminderReschedulesOnTimingChange(t *testing.T) {
	h := newServiceHarness(t)
	rem, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)

	// Non-timing edit: no reschedule.
	desc := "bring the carrier"
	_, err = h.svc.UpdateReminder(context.Background(), rem.ID, ReminderPatch{Description: &desc})
	require.NoError(t, err)
	assert.Len(t, h.jobs.scheduled, 1)

	newDue := date(2025, 6, 20)
	updated, err := h.svc.UpdateReminder(context.Background(), rem.ID, ReminderPatch{DueDate: &newDue})
	require.NoError(t, err)
	assert.Equal(t, newDue, updated.DueDate)
	assert.Equal(t, []int64{rem.ID, rem.ID}, h.jobs.scheduled)
}

func TestDeleteReminderUnschedules(t *testing.T) {
	h := newServiceHarness(t)
	rem, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteReminder(context.Background(), rem.ID))
	assert.Equal(t, []int64{rem.ID}, h.jobs.unscheduled)
	_, err = h.svc.GetReminder(rem.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteReminder(t *testing.T) {
	h := newServiceHarness(t)
	rem, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)

	completed, err := h.svc.CompleteReminder(context.Background(), rem.ID, &h.owner.ID, "manual")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Equal(t, "manual", completed.CompletionMethod)
	assert.Equal(t, []int64{rem.ID}, h.jobs.unscheduled)

	_, err = h.svc.CompleteReminder(context.Background(), rem.ID, &h.owner.ID, "manual")
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestCompleteRecurringSpawnsSuccessor(t *testing.T) {
	h := newServiceHarness(t)
	d := h.draft()
	d.Recurrence = RecurrenceWeekly
	rem, err := h.svc.CreateReminder(context.Background(), d)
	require.NoError(t, err)

	_, err = h.svc.CompleteReminder(context.Background(), rem.ID, nil, "manual")
	require.NoError(t, err)

	reminders, err := h.svc.ListReminders(h.owner.ID)
	require.NoError(t, err)
	require.Len(t, reminders, 2)

	var successor *Reminder
	for _, r := range reminders {
		if r.ID != rem.ID {
			successor = r
		}
	}
	require.NotNil(t, successor)
	assert.Equal(t, date(2025, 6, 17), successor.DueDate)
	assert.Equal(t, 2, successor.CurrentOccurrence)
	assert.Equal(t, StatusPending, successor.Status)
	assert.Contains(t, h.jobs.scheduled, successor.ID)
}

func TestCompleteLastOccurrenceSpawnsNothing(t *testing.T) {
	h := newServiceHarness(t)
	max := 1
	d := h.draft()
	d.Recurrence = RecurrenceWeekly
	d.MaxOccurrences = &max
	rem, err := h.svc.CreateReminder(context.Background(), d)
	require.NoError(t, err)

	_, err = h.svc.CompleteReminder(context.Background(), rem.ID, nil, "manual")
	require.NoError(t, err)

	reminders, err := h.svc.ListReminders(h.owner.ID)
	require.NoError(t, err)
	assert.Len(t, reminders, 1)
}

func TestCompleteByToken(t *testing.T) {
	h := newServiceHarness(t)
	rem, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)

	token, err := h.svc.MintCompletionToken(rem.ID)
	require.NoError(t, err)

	completed, err := h.svc.CompleteByToken(context.Background(), rem.ID, token, "email_link")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Nil(t, completed.CompletionToken)

	// Single use: the same token is gone.
	_, err = h.svc.CompleteByToken(context.Background(), rem.ID, token, "email_link")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCompleteByTokenRejectsWrongToken(t *testing.T) {
	h := newServiceHarness(t)
	rem, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)

	_, err = h.svc.MintCompletionToken(rem.ID)
	require.NoError(t, err)

	_, err = h.svc.CompleteByToken(context.Background(), rem.ID, "not-the-token", "email_link")
	assert.ErrorIs(t, err, ErrInvalidToken)

	got, err := h.svc.GetReminder(rem.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestCompleteByTokenRejectsExpired(t *testing.T) {
	h := newServiceHarness(t)
	rem, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)

	token, err := h.svc.MintCompletionToken(rem.ID)
	require.NoError(t, err)

	h.now = h.now.Add(8 * 24 * time.Hour)
	_, err = h.svc.CompleteByToken(context.Background(), rem.ID, token, "email_link")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHandleFireDispatchesOnce(t *testing.T) {
	h := newServiceHarness(t)
	rem, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)

	h.svc.HandleFire(context.Background(), rem.ID, h.now)
	assert.Equal(t, 1, h.dispatch.sends())

	// A duplicate fire inside the cooldown loses the claim.
	h.svc.HandleFire(context.Background(), rem.ID, h.now)
	assert.Equal(t, 1, h.dispatch.sends())

	got, err := h.svc.GetReminder(rem.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextFollowupAt)
	assert.Equal(t, h.now.Add(30*time.Minute), *got.NextFollowupAt)
}

func TestHandleFireOwnerLoadErrorKeepsWindow(t *testing.T) {
	h := newServiceHarness(t)
	rem, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)

	// A transient store error must abort before the delivery window is
	// claimed, or the reminder sits suppressed for the whole cooldown.
	h.store.mu.Lock()
	h.store.failOwnerLoads = 1
	h.store.mu.Unlock()
	h.svc.HandleFire(context.Background(), rem.ID, h.now)
	assert.Equal(t, 0, h.dispatch.sends())

	got, err := h.svc.GetReminder(rem.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastNotificationSent)
	assert.Nil(t, got.NextFollowupAt)

	// Retry with the store healthy again delivers normally.
	h.svc.HandleFire(context.Background(), rem.ID, h.now)
	assert.Equal(t, 1, h.dispatch.sends())
}

func TestHandleFireConcurrentDuplicates(t *testing.T) {
	h := newServiceHarness(t)
	rem, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.svc.HandleFire(context.Background(), rem.ID, h.now)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.dispatch.sends())
}

func TestHandleFireSkipsCompleted(t *testing.T) {
	h := newServiceHarness(t)
	rem, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)
	_, err = h.svc.CompleteReminder(context.Background(), rem.ID, nil, "manual")
	require.NoError(t, err)

	h.svc.HandleFire(context.Background(), rem.ID, h.now)
	assert.Equal(t, 0, h.dispatch.sends())
}

func TestRunFollowups(t *testing.T) {
	h := newServiceHarness(t)
	rem, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)

	h.svc.HandleFire(context.Background(), rem.ID, h.now)
	require.Equal(t, 1, h.dispatch.sends())

	// Not due yet.
	sent, err := h.svc.RunFollowups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	h.now = h.now.Add(31 * time.Minute)
	sent, err = h.svc.RunFollowups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 2, h.dispatch.sends())

	got, err := h.svc.GetReminder(rem.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FollowupCount)
	require.NotNil(t, got.NextFollowupAt)
	// Backoff doubled for the second follow-up.
	assert.Equal(t, h.now.Add(time.Hour), *got.NextFollowupAt)
}

func TestRunFollowupsStopsAtMax(t *testing.T) {
	h := newServiceHarness(t)
	rem, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)
	h.svc.HandleFire(context.Background(), rem.ID, h.now)

	// max_count is 3 in the harness; drain the whole chain.
	for i := 0; i < 5; i++ {
		h.now = h.now.Add(9 * time.Hour)
		_, err = h.svc.RunFollowups(context.Background())
		require.NoError(t, err)
	}

	got, err := h.svc.GetReminder(rem.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.FollowupCount)
	assert.Nil(t, got.NextFollowupAt)
	// One fire plus three follow-ups, then silence.
	assert.Equal(t, 4, h.dispatch.sends())
}

func TestRunFollowupsRespectsOptOut(t *testing.T) {
	h := newServiceHarness(t)
	d := h.draft()
	rem, err := h.svc.CreateReminder(context.Background(), d)
	require.NoError(t, err)

	stopped := true
	_, err = h.svc.UpdateReminder(context.Background(), rem.ID, ReminderPatch{FollowupsStopped: &stopped})
	require.NoError(t, err)

	h.svc.HandleFire(context.Background(), rem.ID, h.now)
	h.now = h.now.Add(10 * time.Hour)
	sent, err := h.svc.RunFollowups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestSweepOverdue(t *testing.T) {
	h := newServiceHarness(t)

	past := h.draft()
	past.DueDate = date(2025, 5, 20)
	past.Recurrence = RecurrenceWeekly
	overdueRem, err := h.svc.CreateReminder(context.Background(), past)
	require.NoError(t, err)

	current, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)

	marked, err := h.svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	got, err := h.svc.GetReminder(overdueRem.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, got.Status)

	got, err = h.svc.GetReminder(current.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestSweepOverdueSeedsFollowupChain(t *testing.T) {
	h := newServiceHarness(t)

	// Due in the past and never fired, as after downtime: no fire means
	// no follow-up chain, so the sweep has to start one.
	past := h.draft()
	past.DueDate = date(2025, 5, 20)
	rem, err := h.svc.CreateReminder(context.Background(), past)
	require.NoError(t, err)

	marked, err := h.svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	got, err := h.svc.GetReminder(rem.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, got.Status)
	require.NotNil(t, got.NextFollowupAt)
	assert.Equal(t, h.now, *got.NextFollowupAt)

	sent, err := h.svc.RunFollowups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, h.dispatch.sends())

	// A second sweep on an already-overdue reminder changes nothing.
	marked, err = h.svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, marked)
}

func TestRestoreJobs(t *testing.T) {
	h := newServiceHarness(t)
	a, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)
	b, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)
	_, err = h.svc.CompleteReminder(context.Background(), b.ID, nil, "manual")
	require.NoError(t, err)

	h.jobs = &fakeJobs{}
	h.svc.SetJobs(h.jobs)

	restored, err := h.svc.RestoreJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	assert.Equal(t, []int64{a.ID}, h.jobs.scheduled)
}

func TestPurgeExpired(t *testing.T) {
	h := newServiceHarness(t)
	rem, err := h.svc.CreateReminder(context.Background(), h.draft())
	require.NoError(t, err)
	_, err = h.svc.MintCompletionToken(rem.ID)
	require.NoError(t, err)

	h.now = h.now.Add(8 * 24 * time.Hour)
	require.NoError(t, h.svc.PurgeExpired(context.Background()))

	got, err := h.svc.GetReminder(rem.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CompletionToken)
}

func TestFollowupBackoff(t *testing.T) {
	base := 30 * time.Minute
	max := 8 * time.Hour

	assert.Equal(t, 30*time.Minute, FollowupBackoff(base, max, 1))
	assert.Equal(t, time.Hour, FollowupBackoff(base, max, 2))
	assert.Equal(t, 2*time.Hour, FollowupBackoff(base, max, 3))
	assert.Equal(t, 4*time.Hour, FollowupBackoff(base, max, 4))
	assert.Equal(t, 8*time.Hour, FollowupBackoff(base, max, 5))
	assert.Equal(t, 8*time.Hour, FollowupBackoff(base, max, 12))
}
