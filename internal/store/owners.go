package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/EscobozaEstrada/mrwhite-sub001/internal/core"
)

// CreateOwner creates a new owner
func (s *Store) CreateOwner(o *core.Owner) (*core.Owner, error) {
	if o.Timezone == "" {
		o.Timezone = "UTC"
	}
	if o.Locale == "" {
		o.Locale = "en"
	}

	query := `INSERT INTO owners (name, email, phone, telegram_chat_id, timezone, locale)
	          VALUES (?, ?, ?, ?, ?, ?)`

	var chatID sql.NullInt64
	if o.TelegramChatID != nil {
		chatID = sql.NullInt64{Int64: *o.TelegramChatID, Valid: true}
	}

	result, err := s.db.Exec(query, o.Name, o.Email, o.Phone, chatID, o.Timezone, o.Locale)
	if err != nil {
		return nil, fmt.Errorf("failed to create owner: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get owner id: %w", err)
	}

	return s.GetOwnerByID(id)
}

// GetOwnerByID retrieves an owner by id
func (s *Store) GetOwnerByID(id int64) (*core.Owner, error) {
	query := `SELECT id, name, email, phone, telegram_chat_id, timezone, locale, created_at
	          FROM owners WHERE id = ?`
	return s.scanOwner(s.db.QueryRow(query, id))
}

// GetOwnerByEmail retrieves an owner by email
func (s *Store) GetOwnerByEmail(email string) (*core.Owner, error) {
	query := `SELECT id, name, email, phone, telegram_chat_id, timezone, locale, created_at
	          FROM owners WHERE email = ?`
	return s.scanOwner(s.db.QueryRow(query, email))
}

// UpdateOwnerTimezone updates an owner's timezone
func (s *Store) UpdateOwnerTimezone(id int64, timezone string) error {
	result, err := s.db.Exec(`UPDATE owners SET timezone = ? WHERE id = ?`, timezone, id)
	if err != nil {
		return fmt.Errorf("failed to update owner timezone: %w", err)
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

// UpdateOwnerTelegramChatID links a Telegram chat to an owner
func (s *Store) UpdateOwnerTelegramChatID(id int64, chatID int64) error {
	result, err := s.db.Exec(`UPDATE owners SET telegram_chat_id = ? WHERE id = ?`, chatID, id)
	if err != nil {
		return fmt.Errorf("failed to update owner telegram chat: %w", err)
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

func (s *Store) scanOwner(row *sql.Row) (*core.Owner, error) {
	var o core.Owner
	var chatID sql.NullInt64
	err := row.Scan(&o.ID, &o.Name, &o.Email, &o.Phone, &chatID, &o.Timezone, &o.Locale, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan owner: %w", err)
	}
	o.TelegramChatID = nullInt64FromDB(chatID)
	return &o, nil
}
