package core

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a reminder
type Status string

const (
	StatusPending   Status = "pending"
	StatusOverdue   Status = "overdue"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Recurrence represents how a reminder repeats
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
	RecurrenceCustom  Recurrence = "custom" // custom interval, measured in days
)

// ValidRecurrence reports whether r is a known recurrence value
func ValidRecurrence(r Recurrence) bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly, RecurrenceCustom:
		return true
	}
	return false
}

// Channel represents a delivery channel for notifications
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// NotificationStatus represents the outcome of a single delivery attempt
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// TimeOfDay is a naive local time of day (no date, no zone)
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" into a TimeOfDay. The whole string must
// match, so inputs with seconds or trailing text are rejected.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// String formats the time of day as "HH:MM"
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// TimezoneSnapshot is the typed metadata captured when a reminder's local time
// was entered. It pins the timezone the naive due time was authored in,
// independent of later changes to the owner's timezone preference.
type TimezoneSnapshot struct {
	Version      int    `json:"version"`
	UserTimezone string `json:"user_timezone"`
	AutoDetected bool   `json:"auto_detected"`
	AISuggested  bool   `json:"ai_suggested"`
}

// SnapshotVersion is the current TimezoneSnapshot schema version
const SnapshotVersion = 1

// Owner represents the person a reminder belongs to and the recipient of
// its notifications
type Owner struct {
	ID             int64
	Name           string
	Email          string
	Phone          string
	TelegramChatID *int64 // Nullable
	Timezone       string // IANA identifier, e.g. "America/New_York"
	Locale         string
	CreatedAt      time.Time
}

// Reminder represents a scheduled care task with a due moment and optional
// recurrence. Dates and times of day are civil values in the owner's
// timezone, never the server's.
type Reminder struct {
	ID          int64
	OwnerID     int64
	Title       string
	Description string

	DueDate time.Time  // calendar date; time-of-day part is ignored
	DueTime *TimeOfDay // nil means the configured fallback applies

	// Lead-time fields: when the first notification should fire,
	// due minus DaysBeforeReminder days, clamped forward to today.
	DaysBeforeReminder int
	ReminderDate       *time.Time
	ReminderTime       *TimeOfDay

	Status Status

	Recurrence         Recurrence
	RecurrenceInterval int
	RecurrenceEndDate  *time.Time
	MaxOccurrences     *int
	CurrentOccurrence  int

	SendPush  bool
	SendEmail bool
	SendSMS   bool

	// LastNotificationSent suppresses re-sends within the cooldown window.
	LastNotificationSent *time.Time

	Timezone *TimezoneSnapshot

	CompletedAt      *time.Time
	CompletedBy      *int64
	CompletionMethod string
	CompletionToken  *string
	TokenCreated     *time.Time

	FollowupsStopped bool
	FollowupCount    int
	NextFollowupAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRecurring reports whether the reminder generates successor occurrences
func (r *Reminder) IsRecurring() bool {
	return r.Recurrence != "" && r.Recurrence != RecurrenceNone
}

// Channels returns the delivery channels enabled on the reminder
func (r *Reminder) Channels() []Channel {
	var chs []Channel
	if r.SendPush {
		chs = append(chs, ChannelPush)
	}
	if r.SendEmail {
		chs = append(chs, ChannelEmail)
	}
	if r.SendSMS {
		chs = append(chs, ChannelSMS)
	}
	return chs
}

// Notification represents a single delivery attempt for a reminder
type Notification struct {
	ID         int64
	ReminderID int64
	Channel    Channel
	Status     NotificationStatus
	Error      string
	CreatedAt  time.Time
}

// DateOnly strips the time-of-day and zone from t, keeping the calendar date
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether a and b fall on the same calendar date
func SameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
