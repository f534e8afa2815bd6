package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tod(h, m int) *TimeOfDay {
	return &TimeOfDay{Hour: h, Minute: m}
}

func TestComputeTriggerFutureDate(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rem := &Reminder{
		DueDate: date(2025, 6, 10),
		DueTime: tod(14, 30),
	}

	res := ComputeTrigger(rem, "Europe/Berlin", now, DefaultTriggerPolicy())

	require.False(t, res.Skipped)
	// 14:30 CEST is 12:30 UTC, minus the 30s dispatch buffer.
	assert.Equal(t, time.Date(2025, 6, 10, 12, 29, 30, 0, time.UTC), res.FireAt)
	assert.Nil(t, res.AdjustedDate)
	assert.Empty(t, res.CorrectedTimezone)
}

func TestComputeTriggerAcrossDSTTransition(t *testing.T) {
	// US DST starts 2025-03-09. A reminder authored before the switch for
	// the day after must fire at 09:00 EDT, not 09:00 EST.
	now := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	rem := &Reminder{
		DueDate: date(2025, 3, 10),
		DueTime: tod(9, 0),
	}

	res := ComputeTrigger(rem, "America/New_York", now, DefaultTriggerPolicy())

	require.False(t, res.Skipped)
	assert.Equal(t, time.Date(2025, 3, 10, 12, 59, 30, 0, time.UTC), res.FireAt)
}

func TestComputeTriggerFallbackTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rem := &Reminder{DueDate: date(2025, 6, 10)}

	res := ComputeTrigger(rem, "UTC", now, DefaultTriggerPolicy())

	require.False(t, res.Skipped)
	assert.Equal(t, time.Date(2025, 6, 10, 8, 59, 30, 0, time.UTC), res.FireAt)
}

func TestComputeTriggerLeadTimeFieldsWin(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rd := date(2025, 6, 7)
	rem := &Reminder{
		DueDate:            date(2025, 6, 10),
		DueTime:            tod(18, 0),
		DaysBeforeReminder: 3,
		ReminderDate:       &rd,
		ReminderTime:       tod(10, 0),
	}

	res := ComputeTrigger(rem, "UTC", now, DefaultTriggerPolicy())

	require.False(t, res.Skipped)
	assert.Equal(t, time.Date(2025, 6, 7, 9, 59, 30, 0, time.UTC), res.FireAt)
}

func TestComputeTriggerSameDayRollsForward(t *testing.T) {
	// The reminder's own day, but the buffered local time already passed:
	// self-heal by moving exactly one day forward.
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	rem := &Reminder{
		DueDate: date(2025, 6, 10),
		DueTime: tod(9, 0),
	}

	res := ComputeTrigger(rem, "UTC", now, DefaultTriggerPolicy())

	require.False(t, res.Skipped)
	assert.Equal(t, time.Date(2025, 6, 11, 8, 59, 30, 0, time.UTC), res.FireAt)
	require.NotNil(t, res.AdjustedDate)
	assert.Equal(t, date(2025, 6, 11), *res.AdjustedDate)
	assert.False(t, res.AdjustedLeadTime)
}

func TestComputeTriggerSameDayBoundary(t *testing.T) {
	// Exactly at the buffered instant: still schedulable, no roll.
	now := time.Date(2025, 6, 10, 8, 59, 30, 0, time.UTC)
	rem := &Reminder{
		DueDate: date(2025, 6, 10),
		DueTime: tod(9, 0),
	}

	res := ComputeTrigger(rem, "UTC", now, DefaultTriggerPolicy())

	require.False(t, res.Skipped)
	assert.Equal(t, now, res.FireAt)
	assert.Nil(t, res.AdjustedDate)
}

func TestComputeTriggerPastNonRecurringSkips(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	rem := &Reminder{
		DueDate: date(2025, 6, 1),
		DueTime: tod(9, 0),
	}

	res := ComputeTrigger(rem, "UTC", now, DefaultTriggerPolicy())

	require.True(t, res.Skipped)
	assert.Equal(t, SkipPastNonRecurring, res.Reason)
	assert.True(t, res.FireAt.IsZero())
}

func TestComputeTriggerPastRecurringAdvances(t *testing.T) {
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	rem := &Reminder{
		DueDate:            date(2025, 1, 6),
		DueTime:            tod(9, 0),
		Recurrence:         RecurrenceWeekly,
		RecurrenceInterval: 1,
	}

	res := ComputeTrigger(rem, "UTC", now, DefaultTriggerPolicy())

	require.False(t, res.Skipped)
	// Whole weekly steps from Jan 6: the first not before Feb 1 is Feb 3.
	require.NotNil(t, res.AdjustedDate)
	assert.Equal(t, date(2025, 2, 3), *res.AdjustedDate)
	assert.Equal(t, time.Date(2025, 2, 3, 8, 59, 30, 0, time.UTC), res.FireAt)
}

func TestComputeTriggerInvalidTimezoneCorrected(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rem := &Reminder{
		DueDate: date(2025, 6, 10),
		DueTime: tod(9, 0),
	}

	res := ComputeTrigger(rem, "Mars/Olympus_Mons", now, DefaultTriggerPolicy())

	require.False(t, res.Skipped)
	assert.Equal(t, "UTC", res.CorrectedTimezone)
	assert.Equal(t, time.Date(2025, 6, 10, 8, 59, 30, 0, time.UTC), res.FireAt)
}

func TestComputeTriggerSnapshotWinsOverOwner(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rem := &Reminder{
		DueDate:  date(2025, 6, 10),
		DueTime:  tod(9, 0),
		Timezone: &TimezoneSnapshot{Version: SnapshotVersion, UserTimezone: "Asia/Tokyo"},
	}

	res := ComputeTrigger(rem, "America/New_York", now, DefaultTriggerPolicy())

	require.False(t, res.Skipped)
	// 09:00 JST is 00:00 UTC.
	assert.Equal(t, time.Date(2025, 6, 9, 23, 59, 30, 0, time.UTC), res.FireAt)
}

func TestComputeLeadTime(t *testing.T) {
	today := date(2025, 6, 5)

	assert.Equal(t, date(2025, 6, 7), ComputeLeadTime(date(2025, 6, 10), 3, today))
	// Clamped: due minus lead would land before today.
	assert.Equal(t, today, ComputeLeadTime(date(2025, 6, 6), 5, today))
	assert.Equal(t, today, ComputeLeadTime(date(2025, 6, 5), 0, today))
}

func TestParseTimeOfDay(t *testing.T) {
	parsed, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 30}, parsed)
	assert.Equal(t, "09:30", parsed.String())

	for _, bad := range []string{"25:00", "09:75", "nonsense", "09:30:45", "9:30abc", "09:30 "} {
		_, err = ParseTimeOfDay(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
