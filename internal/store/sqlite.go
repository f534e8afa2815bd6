package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/EscobozaEstrada/mrwhite-sub001/internal/core"
)

// Store provides access to the SQLite database
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store instance and runs migrations
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS owners (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL DEFAULT '',
		telegram_chat_id INTEGER,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		locale TEXT NOT NULL DEFAULT 'en',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS reminders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		due_date TEXT NOT NULL,
		due_time TEXT,
		days_before_reminder INTEGER NOT NULL DEFAULT 0,
		reminder_date TEXT,
		reminder_time TEXT,
		status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'overdue', 'completed', 'cancelled')),
		recurrence TEXT NOT NULL DEFAULT 'none',
		recurrence_interval INTEGER NOT NULL DEFAULT 1,
		recurrence_end_date TEXT,
		max_occurrences INTEGER,
		current_occurrence INTEGER NOT NULL DEFAULT 1,
		send_push INTEGER NOT NULL DEFAULT 1,
		send_email INTEGER NOT NULL DEFAULT 0,
		send_sms INTEGER NOT NULL DEFAULT 0,
		last_notification_sent DATETIME,
		timezone_snapshot TEXT,
		completed_at DATETIME,
		completed_by INTEGER,
		completion_method TEXT NOT NULL DEFAULT '',
		completion_token TEXT,
		token_created DATETIME,
		followups_stopped INTEGER NOT NULL DEFAULT 0,
		followup_count INTEGER NOT NULL DEFAULT 0,
		next_followup_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (owner_id) REFERENCES owners(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reminder_id INTEGER NOT NULL,
		channel TEXT NOT NULL CHECK(channel IN ('push', 'email', 'sms')),
		status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'sent', 'failed')),
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (reminder_id) REFERENCES reminders(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_reminders_owner ON reminders(owner_id);
	CREATE INDEX IF NOT EXISTS idx_reminders_status ON reminders(status);
	CREATE INDEX IF NOT EXISTS idx_reminders_next_followup ON reminders(next_followup_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_reminder ON notifications(reminder_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const dateLayout = "2006-01-02"

// dateToDB converts a calendar date to its TEXT column form
func dateToDB(t time.Time) string {
	return t.Format(dateLayout)
}

// dateFromDB parses a TEXT date column into a UTC-midnight time
func dateFromDB(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// nullDateToDB converts an optional calendar date
func nullDateToDB(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: dateToDB(*t), Valid: true}
}

// nullDateFromDB parses an optional TEXT date column
func nullDateFromDB(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := dateFromDB(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// timeOfDayToDB converts an optional time of day to its TEXT column form
func timeOfDayToDB(t *core.TimeOfDay) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.String(), Valid: true}
}

// timeOfDayFromDB parses an optional TEXT time-of-day column
func timeOfDayFromDB(ns sql.NullString) (*core.TimeOfDay, error) {
	if !ns.Valid {
		return nil, nil
	}
	tod, err := core.ParseTimeOfDay(ns.String)
	if err != nil {
		return nil, err
	}
	return &tod, nil
}

// nullTimeToDB converts an optional timestamp
func nullTimeToDB(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// nullTimeFromDB unwraps an optional timestamp column
func nullTimeFromDB(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// nullInt64FromDB unwraps an optional integer column
func nullInt64FromDB(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

// nullIntFromDB unwraps an optional integer column into *int
func nullIntFromDB(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

// nullStringFromDB unwraps an optional text column
func nullStringFromDB(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
