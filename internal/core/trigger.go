package core

import (
	"time"
)

// TriggerPolicy holds the tunable knobs of trigger computation. The exact
// tolerance values are deployment policy, not hard requirements.
type TriggerPolicy struct {
	// DispatchBuffer is subtracted from the local fire time to compensate
	// for worker dispatch latency.
	DispatchBuffer time.Duration

	// StaleTolerance is how far in the past a computed instant may land
	// and still be treated as valid-but-imminent rather than stale.
	StaleTolerance time.Duration

	// DefaultTimezone is used when neither the reminder snapshot nor the
	// owner preference resolves to a loadable location.
	DefaultTimezone string

	// FallbackTime applies when a reminder has a due date but no due time.
	FallbackTime TimeOfDay
}

// DefaultTriggerPolicy returns the stock policy: 30s dispatch buffer,
// 5 minute stale tolerance, UTC default zone, 09:00 fallback time.
func DefaultTriggerPolicy() TriggerPolicy {
	return TriggerPolicy{
		DispatchBuffer:  30 * time.Second,
		StaleTolerance:  5 * time.Minute,
		DefaultTimezone: "UTC",
		FallbackTime:    TimeOfDay{Hour: 9},
	}
}

// SkipReason explains why a trigger was not scheduled
type SkipReason string

const (
	SkipPastNonRecurring SkipReason = "past, non-recurring"
	SkipStale            SkipReason = "stale"
)

// TriggerResult is the explicit outcome of a trigger computation: either a
// UTC fire instant or a skip with a reason. Side effects the caller should
// persist (self-healed dates, corrected timezones) are carried as hints so
// the computation itself stays pure.
type TriggerResult struct {
	FireAt  time.Time
	Skipped bool
	Reason  SkipReason

	// AdjustedDate is set when the source date was rolled forward (the
	// same-day self-heal, or advancing a past recurring reminder).
	// AdjustedLeadTime tells the caller which field it belongs to.
	AdjustedDate     *time.Time
	AdjustedLeadTime bool

	// CorrectedTimezone is set when the owner's timezone identifier was
	// invalid and the default was substituted; the caller persists the
	// correction back to the owner record.
	CorrectedTimezone string
}

// ComputeTrigger computes the next absolute UTC instant a reminder must
// fire. All date/time fields on the reminder are civil values interpreted in
// the resolved timezone: the reminder's authored snapshot first, then the
// owner preference, then the policy default. The result is deterministic
// given identical inputs.
func ComputeTrigger(rem *Reminder, ownerTimezone string, nowUTC time.Time, pol TriggerPolicy) TriggerResult {
	var res TriggerResult

	loc, corrected := resolveLocation(rem, ownerTimezone, pol)
	if corrected {
		res.CorrectedTimezone = pol.DefaultTimezone
	}

	// Source date/time: lead-time fields when both are present, otherwise
	// the due date with the due time or fallback.
	srcDate, srcTime, leadTime := sourceDateTime(rem, pol)

	localNow := nowUTC.In(loc)
	today := DateOnly(localNow)

	date := DateOnly(srcDate)
	switch {
	case SameDate(date, today):
		// Scheduled on its own day: if the buffered local time already
		// passed, self-heal by rolling forward exactly one day.
		if localAt(date, srcTime, loc).Add(-pol.DispatchBuffer).Before(localNow) {
			date = date.AddDate(0, 0, 1)
			res.AdjustedDate = &date
			res.AdjustedLeadTime = leadTime
		}
	case date.Before(today):
		if !rem.IsRecurring() {
			res.Skipped = true
			res.Reason = SkipPastNonRecurring
			return res
		}
		// Recurring reminders advance by whole recurrence steps to the
		// first occurrence not before today.
		for date.Before(today) {
			date = advanceDate(date, rem.Recurrence, rem.RecurrenceInterval)
		}
		res.AdjustedDate = &date
		res.AdjustedLeadTime = leadTime
	}

	fireAt := localAt(date, srcTime, loc).Add(-pol.DispatchBuffer).UTC()

	// A result slightly in the past absorbs clock skew and processing
	// delay; anything beyond the tolerance is stale.
	if lag := nowUTC.Sub(fireAt); lag > 0 {
		if lag > pol.StaleTolerance {
			res.Skipped = true
			res.Reason = SkipStale
			return res
		}
		fireAt = nowUTC
	}

	res.FireAt = fireAt
	return res
}

// ComputeLeadTime returns the date the first notification should fire:
// due minus days, never before today.
func ComputeLeadTime(dueDate time.Time, daysBefore int, today time.Time) time.Time {
	d := DateOnly(dueDate).AddDate(0, 0, -daysBefore)
	today = DateOnly(today)
	if d.Before(today) {
		return today
	}
	return d
}

// resolveLocation picks the timezone the reminder's civil times are
// interpreted in. The authored snapshot wins over the owner's current
// preference so edits to the preference never shift existing reminders.
func resolveLocation(rem *Reminder, ownerTimezone string, pol TriggerPolicy) (*time.Location, bool) {
	name := ""
	if rem.Timezone != nil && rem.Timezone.UserTimezone != "" {
		name = rem.Timezone.UserTimezone
	} else if ownerTimezone != "" {
		name = ownerTimezone
	}
	if name == "" {
		name = pol.DefaultTimezone
	}

	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, false
	}

	loc, err = time.LoadLocation(pol.DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	return loc, true
}

func sourceDateTime(rem *Reminder, pol TriggerPolicy) (time.Time, TimeOfDay, bool) {
	if rem.ReminderDate != nil && rem.ReminderTime != nil {
		return *rem.ReminderDate, *rem.ReminderTime, true
	}
	t := pol.FallbackTime
	if rem.DueTime != nil {
		t = *rem.DueTime
	}
	return rem.DueDate, t, false
}

// localAt combines a calendar date and time of day into an aware instant in loc
func localAt(date time.Time, tod TimeOfDay, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), tod.Hour, tod.Minute, 0, 0, loc)
}
