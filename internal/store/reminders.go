package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/EscobozaEstrada/mrwhite-sub001/internal/core"
)

const reminderColumns = `id, owner_id, title, description, due_date, due_time,
	days_before_reminder, reminder_date, reminder_time, status,
	recurrence, recurrence_interval, recurrence_end_date, max_occurrences, current_occurrence,
	send_push, send_email, send_sms, last_notification_sent, timezone_snapshot,
	completed_at, completed_by, completion_method, completion_token, token_created,
	followups_stopped, followup_count, next_followup_at, created_at, updated_at`

// CreateReminder creates a new reminder
func (s *Store) CreateReminder(r *core.Reminder) (*core.Reminder, error) {
	snapshot, err := snapshotToDB(r.Timezone)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO reminders (owner_id, title, description, due_date, due_time,
		days_before_reminder, reminder_date, reminder_time, status,
		recurrence, recurrence_interval, recurrence_end_date, max_occurrences, current_occurrence,
		send_push, send_email, send_sms, timezone_snapshot, followups_stopped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	status := r.Status
	if status == "" {
		status = core.StatusPending
	}
	occurrence := r.CurrentOccurrence
	if occurrence < 1 {
		occurrence = 1
	}

	var maxOcc sql.NullInt64
	if r.MaxOccurrences != nil {
		maxOcc = sql.NullInt64{Int64: int64(*r.MaxOccurrences), Valid: true}
	}

	result, err := s.db.Exec(query,
		r.OwnerID, r.Title, r.Description, dateToDB(r.DueDate), timeOfDayToDB(r.DueTime),
		r.DaysBeforeReminder, nullDateToDB(r.ReminderDate), timeOfDayToDB(r.ReminderTime), status,
		r.Recurrence, r.RecurrenceInterval, nullDateToDB(r.RecurrenceEndDate), maxOcc, occurrence,
		r.SendPush, r.SendEmail, r.SendSMS, snapshot, r.FollowupsStopped)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder id: %w", err)
	}

	return s.GetReminderByID(id)
}

// GetReminderByID retrieves a reminder by id
func (s *Store) GetReminderByID(id int64) (*core.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE id = ?`
	r, err := scanReminder(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	return r, err
}

// UpdateReminder persists the full mutable state of a reminder
func (s *Store) UpdateReminder(r *core.Reminder) error {
	snapshot, err := snapshotToDB(r.Timezone)
	if err != nil {
		return err
	}

	var maxOcc sql.NullInt64
	if r.MaxOccurrences != nil {
		maxOcc = sql.NullInt64{Int64: int64(*r.MaxOccurrences), Valid: true}
	}

	query := `UPDATE reminders SET
		title = ?, description = ?, due_date = ?, due_time = ?,
		days_before_reminder = ?, reminder_date = ?, reminder_time = ?, status = ?,
		recurrence = ?, recurrence_interval = ?, recurrence_end_date = ?, max_occurrences = ?, current_occurrence = ?,
		send_push = ?, send_email = ?, send_sms = ?, timezone_snapshot = ?,
		followups_stopped = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	result, err := s.db.Exec(query,
		r.Title, r.Description, dateToDB(r.DueDate), timeOfDayToDB(r.DueTime),
		r.DaysBeforeReminder, nullDateToDB(r.ReminderDate), timeOfDayToDB(r.ReminderTime), r.Status,
		r.Recurrence, r.RecurrenceInterval, nullDateToDB(r.RecurrenceEndDate), maxOcc, r.CurrentOccurrence,
		r.SendPush, r.SendEmail, r.SendSMS, snapshot,
		r.FollowupsStopped, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return core.ErrNotFound
	}
	return nil
}

// DeleteReminder removes a reminder and, via cascade, its notifications
func (s *Store) DeleteReminder(id int64) error {
	result, err := s.db.Exec(`DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ListRemindersByStatus retrieves all reminders with the given status
func (s *Store) ListRemindersByStatus(status core.Status) ([]*core.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE status = ? ORDER BY due_date, id`
	rows, err := s.db.Query(query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

// ListRemindersByOwner retrieves all reminders belonging to an owner
func (s *Store) ListRemindersByOwner(ownerID int64) ([]*core.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE owner_id = ? ORDER BY due_date, id`
	rows, err := s.db.Query(query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

// ListPendingDueBefore retrieves pending reminders whose due date falls on
// or before the cutoff
func (s *Store) ListPendingDueBefore(cutoff time.Time) ([]*core.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders
		WHERE status = 'pending' AND due_date <= ? ORDER BY due_date, id`
	rows, err := s.db.Query(query, dateToDB(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

// ListFollowupsDue retrieves unacknowledged reminders whose next follow-up
// instant has passed
func (s *Store) ListFollowupsDue(now time.Time) ([]*core.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders
		WHERE status IN ('pending', 'overdue')
		  AND followups_stopped = 0
		  AND next_followup_at IS NOT NULL
		  AND next_followup_at <= ?
		ORDER BY next_followup_at, id`
	rows, err := s.db.Query(query, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list due follow-ups: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

// MarkReminderOverdue moves a pending reminder to overdue. Returns false
// when the reminder was not pending anymore.
func (s *Store) MarkReminderOverdue(id int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE reminders SET status = 'overdue', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder overdue: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// ClaimFire atomically claims the delivery window for a firing reminder.
// The claim fails when the reminder is no longer pending or a notification
// already went out inside the cooldown.
func (s *Store) ClaimFire(id int64, now time.Time, cooldown time.Duration) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE reminders SET last_notification_sent = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'pending'
		   AND (last_notification_sent IS NULL OR last_notification_sent <= ?)`,
		now.UTC(), id, now.UTC().Add(-cooldown))
	if err != nil {
		return false, fmt.Errorf("failed to claim fire: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// ClaimFollowup atomically advances an escalation chain: it records the
// follow-up count and the next instant (nil ends the chain). The claim
// fails when the reminder was acknowledged or another sweep got there
// first.
func (s *Store) ClaimFollowup(id int64, now time.Time, nextAt *time.Time, count int) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE reminders SET last_notification_sent = ?, followup_count = ?,
		        next_followup_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status IN ('pending', 'overdue')
		   AND followups_stopped = 0
		   AND next_followup_at IS NOT NULL AND next_followup_at <= ?`,
		now.UTC(), count, nullTimeToDB(nextAt), id, now.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim follow-up: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// ScheduleFollowup sets the first follow-up instant for a fired reminder
func (s *Store) ScheduleFollowup(id int64, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE reminders SET next_followup_at = ? WHERE id = ? AND followups_stopped = 0`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to schedule follow-up: %w", err)
	}
	return nil
}

// SetCompletionToken stores a fresh single-use completion token, replacing
// any previous one
func (s *Store) SetCompletionToken(reminderID int64, token string, created time.Time) error {
	result, err := s.db.Exec(
		`UPDATE reminders SET completion_token = ?, token_created = ? WHERE id = ?`,
		token, created.UTC(), reminderID)
	if err != nil {
		return fmt.Errorf("failed to set completion token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return core.ErrNotFound
	}
	return nil
}

// CompleteReminder atomically marks a reminder completed and clears its
// token and follow-up chain. When expectToken is set the update only
// succeeds if the stored token still matches, which makes the token
// single-use. Returns false when the claim was lost.
func (s *Store) CompleteReminder(id int64, completedBy *int64, method string, now time.Time, expectToken *string) (bool, error) {
	var by sql.NullInt64
	if completedBy != nil {
		by = sql.NullInt64{Int64: *completedBy, Valid: true}
	}

	query := `UPDATE reminders SET status = 'completed', completed_at = ?, completed_by = ?,
		completion_method = ?, completion_token = NULL, token_created = NULL,
		next_followup_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'overdue')`
	args := []any{now.UTC(), by, method, id}
	if expectToken != nil {
		query += ` AND completion_token = ?`
		args = append(args, *expectToken)
	}

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to complete reminder: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// CancelReminder moves an open reminder to cancelled. Returns false when
// it was already closed.
func (s *Store) CancelReminder(id int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE reminders SET status = 'cancelled', next_followup_at = NULL,
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status IN ('pending', 'overdue')`, id)
	if err != nil {
		return false, fmt.Errorf("failed to cancel reminder: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// ClearExpiredTokens removes completion tokens older than the cutoff
func (s *Store) ClearExpiredTokens(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE reminders SET completion_token = NULL, token_created = NULL
		 WHERE token_created IS NOT NULL AND token_created <= ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired tokens: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// snapshotToDB marshals an optional timezone snapshot to its JSON column
func snapshotToDB(snap *core.TimezoneSnapshot) (sql.NullString, error) {
	if snap == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal timezone snapshot: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// snapshotFromDB unmarshals an optional timezone snapshot column
func snapshotFromDB(ns sql.NullString) (*core.TimezoneSnapshot, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var snap core.TimezoneSnapshot
	if err := json.Unmarshal([]byte(ns.String), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal timezone snapshot: %w", err)
	}
	return &snap, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*core.Reminder, error) {
	var r core.Reminder
	var dueDate string
	var dueTime, reminderDate, reminderTime, endDate sql.NullString
	var maxOcc, completedBy sql.NullInt64
	var lastSent, completedAt, tokenCreated, nextFollowup sql.NullTime
	var snapshot, token sql.NullString

	err := row.Scan(
		&r.ID, &r.OwnerID, &r.Title, &r.Description, &dueDate, &dueTime,
		&r.DaysBeforeReminder, &reminderDate, &reminderTime, &r.Status,
		&r.Recurrence, &r.RecurrenceInterval, &endDate, &maxOcc, &r.CurrentOccurrence,
		&r.SendPush, &r.SendEmail, &r.SendSMS, &lastSent, &snapshot,
		&completedAt, &completedBy, &r.CompletionMethod, &token, &tokenCreated,
		&r.FollowupsStopped, &r.FollowupCount, &nextFollowup, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.DueDate, err = dateFromDB(dueDate)
	if err != nil {
		return nil, err
	}
	if r.DueTime, err = timeOfDayFromDB(dueTime); err != nil {
		return nil, err
	}
	if r.ReminderDate, err = nullDateFromDB(reminderDate); err != nil {
		return nil, err
	}
	if r.ReminderTime, err = timeOfDayFromDB(reminderTime); err != nil {
		return nil, err
	}
	if r.RecurrenceEndDate, err = nullDateFromDB(endDate); err != nil {
		return nil, err
	}
	if r.Timezone, err = snapshotFromDB(snapshot); err != nil {
		return nil, err
	}
	r.MaxOccurrences = nullIntFromDB(maxOcc)
	r.CompletedBy = nullInt64FromDB(completedBy)
	r.LastNotificationSent = nullTimeFromDB(lastSent)
	r.CompletedAt = nullTimeFromDB(completedAt)
	r.TokenCreated = nullTimeFromDB(tokenCreated)
	r.NextFollowupAt = nullTimeFromDB(nextFollowup)
	r.CompletionToken = nullStringFromDB(token)

	return &r, nil
}

func collectReminders(rows *sql.Rows) ([]*core.Reminder, error) {
	var reminders []*core.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reminders: %w", err)
	}
	return reminders, nil
}
