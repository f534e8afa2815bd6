package store

import (
	"fmt"
	"time"

	"github.com/EscobozaEstrada/mrwhite-sub001/internal/core"
)

// CreateNotification records a delivery attempt and fills in the generated
// id and timestamp
func (s *Store) CreateNotification(n *core.Notification) error {
	status := n.Status
	if status == "" {
		status = core.NotificationPending
	}

	result, err := s.db.Exec(
		`INSERT INTO notifications (reminder_id, channel, status, error) VALUES (?, ?, ?, ?)`,
		n.ReminderID, n.Channel, status, n.Error)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get notification id: %w", err)
	}
	n.ID = id
	n.Status = status
	n.CreatedAt = time.Now().UTC()
	return nil
}

// UpdateNotificationStatus records the outcome of a delivery attempt
func (s *Store) UpdateNotificationStatus(id int64, status core.NotificationStatus, errMsg string) error {
	result, err := s.db.Exec(
		`UPDATE notifications SET status = ?, error = ? WHERE id = ?`,
		status, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
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

// ListNotificationsByReminder retrieves the delivery history for a reminder
func (s *Store) ListNotificationsByReminder(reminderID int64) ([]*core.Notification, error) {
	rows, err := s.db.Query(
		`SELECT id, reminder_id, channel, status, error, created_at
		 FROM notifications WHERE reminder_id = ? ORDER BY created_at, id`, reminderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*core.Notification
	for rows.Next() {
		var n core.Notification
		if err := rows.Scan(&n.ID, &n.ReminderID, &n.Channel, &n.Status, &n.Error, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return notifications, nil
}

// PurgeNotificationsBefore removes notification history older than the
// cutoff
func (s *Store) PurgeNotificationsBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM notifications WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
