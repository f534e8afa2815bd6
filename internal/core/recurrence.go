package core

import "time"

// NextOccurrence computes the successor of a completed recurring reminder.
// It returns nil when the reminder does not recur, when the next due date
// would pass the recurrence end date, or when the occurrence cap is reached.
//
// The successor clones the static fields, advances the due date by the
// recurrence interval, increments the occurrence counter and recomputes the
// lead-time fields clamped to today (the owner-local date). The original
// reminder is not mutated.
func NextOccurrence(rem *Reminder, today time.Time) *Reminder {
	if !rem.IsRecurring() {
		return nil
	}

	nextDue := advanceDate(DateOnly(rem.DueDate), rem.Recurrence, rem.RecurrenceInterval)

	if rem.RecurrenceEndDate != nil && nextDue.After(DateOnly(*rem.RecurrenceEndDate)) {
		return nil
	}
	if rem.MaxOccurrences != nil && rem.CurrentOccurrence+1 > *rem.MaxOccurrences {
		return nil
	}

	next := &Reminder{
		OwnerID:            rem.OwnerID,
		Title:              rem.Title,
		Description:        rem.Description,
		DueDate:            nextDue,
		DueTime:            cloneTime(rem.DueTime),
		DaysBeforeReminder: rem.DaysBeforeReminder,
		Status:             StatusPending,
		Recurrence:         rem.Recurrence,
		RecurrenceInterval: rem.RecurrenceInterval,
		RecurrenceEndDate:  cloneDate(rem.RecurrenceEndDate),
		MaxOccurrences:     cloneInt(rem.MaxOccurrences),
		CurrentOccurrence:  rem.CurrentOccurrence + 1,
		SendPush:           rem.SendPush,
		SendEmail:          rem.SendEmail,
		SendSMS:            rem.SendSMS,
		FollowupsStopped:   rem.FollowupsStopped,
	}

	if rem.Timezone != nil {
		snap := *rem.Timezone
		next.Timezone = &snap
	}

	if next.DaysBeforeReminder > 0 {
		rd := ComputeLeadTime(nextDue, next.DaysBeforeReminder, today)
		next.ReminderDate = &rd
		next.ReminderTime = cloneTime(rem.ReminderTime)
	}

	return next
}

// advanceDate moves a calendar date forward by interval units of the
// recurrence type. Custom recurrence counts the interval in days.
func advanceDate(d time.Time, rec Recurrence, interval int) time.Time {
	if interval < 1 {
		interval = 1
	}
	switch rec {
	case RecurrenceDaily:
		return d.AddDate(0, 0, interval)
	case RecurrenceWeekly:
		return d.AddDate(0, 0, 7*interval)
	case RecurrenceMonthly:
		return d.AddDate(0, interval, 0)
	case RecurrenceYearly:
		return d.AddDate(interval, 0, 0)
	case RecurrenceCustom:
		return d.AddDate(0, 0, interval)
	}
	return d.AddDate(0, 0, interval)
}

func cloneTime(t *TimeOfDay) *TimeOfDay {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
