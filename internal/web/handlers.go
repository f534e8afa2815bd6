package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/EscobozaEstrada/mrwhite-sub001/internal/core"
)

const dateLayout = "2006-01-02"

type createReminderRequest struct {
	Title              string                 `json:"title"`
	Description        string                 `json:"description"`
	DueDate            string                 `json:"due_date"`
	DueTime            *string                `json:"due_time"`
	DaysBeforeReminder int                    `json:"days_before_reminder"`
	Recurrence         string                 `json:"recurrence"`
	RecurrenceInterval int                    `json:"recurrence_interval"`
	RecurrenceEndDate  *string                `json:"recurrence_end_date"`
	MaxOccurrences     *int                   `json:"max_occurrences"`
	SendPush           bool                   `json:"send_push"`
	SendEmail          bool                   `json:"send_email"`
	SendSMS            bool                   `json:"send_sms"`
	Timezone           *core.TimezoneSnapshot `json:"timezone"`
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req createReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dueDate, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD")
		return
	}
	dueTime, err := parseOptionalTime(req.DueTime)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "due_time must be HH:MM")
		return
	}
	endDate, err := parseOptionalDate(req.RecurrenceEndDate)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "recurrence_end_date must be YYYY-MM-DD")
		return
	}

	rem, err := s.svc.CreateReminder(r.Context(), core.ReminderDraft{
		OwnerID:            sessionOwnerID(r),
		Title:              req.Title,
		Description:        req.Description,
		DueDate:            dueDate,
		DueTime:            dueTime,
		DaysBeforeReminder: req.DaysBeforeReminder,
		Recurrence:         core.Recurrence(req.Recurrence),
		RecurrenceInterval: req.RecurrenceInterval,
		RecurrenceEndDate:  endDate,
		MaxOccurrences:     req.MaxOccurrences,
		SendPush:           req.SendPush,
		SendEmail:          req.SendEmail,
		SendSMS:            req.SendSMS,
		Timezone:           req.Timezone,
	})
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, rem)
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := s.svc.ListReminders(sessionOwnerID(r))
	if err != nil {
		s.logger.Error("failed to list reminders", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	if reminders == nil {
		reminders = []*core.Reminder{}
	}
	s.respondJSON(w, http.StatusOK, reminders)
}

func (s *Server) handleGetReminder(w http.ResponseWriter, r *http.Request) {
	rem, ok := s.ownedReminder(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, rem)
}

type updateReminderRequest struct {
	Title              *string `json:"title"`
	Description        *string `json:"description"`
	DueDate            *string `json:"due_date"`
	DueTime            *string `json:"due_time"`
	DaysBeforeReminder *int    `json:"days_before_reminder"`
	Recurrence         *string `json:"recurrence"`
	RecurrenceInterval *int    `json:"recurrence_interval"`
	RecurrenceEndDate  *string `json:"recurrence_end_date"`
	MaxOccurrences     *int    `json:"max_occurrences"`
	SendPush           *bool   `json:"send_push"`
	SendEmail          *bool   `json:"send_email"`
	SendSMS            *bool   `json:"send_sms"`
	FollowupsStopped   *bool   `json:"followups_stopped"`
}

func (s *Server) handleUpdateReminder(w http.ResponseWriter, r *http.Request) {
	rem, ok := s.ownedReminder(w, r)
	if !ok {
		return
	}

	var req updateReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := core.ReminderPatch{
		Title:              req.Title,
		Description:        req.Description,
		DaysBeforeReminder: req.DaysBeforeReminder,
		RecurrenceInterval: req.RecurrenceInterval,
		MaxOccurrences:     req.MaxOccurrences,
		SendPush:           req.SendPush,
		SendEmail:          req.SendEmail,
		SendSMS:            req.SendSMS,
		FollowupsStopped:   req.FollowupsStopped,
	}
	if req.DueDate != nil {
		d, err := time.Parse(dateLayout, *req.DueDate)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD")
			return
		}
		patch.DueDate = &d
	}
	if req.DueTime != nil {
		t, err := core.ParseTimeOfDay(*req.DueTime)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "due_time must be HH:MM")
			return
		}
		patch.DueTime = &t
	}
	if req.Recurrence != nil {
		rec := core.Recurrence(*req.Recurrence)
		patch.Recurrence = &rec
	}
	if req.RecurrenceEndDate != nil {
		d, err := time.Parse(dateLayout, *req.RecurrenceEndDate)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "recurrence_end_date must be YYYY-MM-DD")
			return
		}
		patch.RecurrenceEndDate = &d
	}

	updated, err := s.svc.UpdateReminder(r.Context(), rem.ID, patch)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	rem, ok := s.ownedReminder(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteReminder(r.Context(), rem.ID); err != nil {
		s.logger.Error("failed to delete reminder", "reminder_id", rem.ID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to delete reminder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompleteReminder(w http.ResponseWriter, r *http.Request) {
	rem, ok := s.ownedReminder(w, r)
	if !ok {
		return
	}
	ownerID := sessionOwnerID(r)
	completed, err := s.svc.CompleteReminder(r.Context(), rem.ID, &ownerID, "manual")
	if errors.Is(err, core.ErrAlreadyCompleted) {
		s.respondError(w, http.StatusConflict, "reminder is already closed")
		return
	}
	if err != nil {
		s.logger.Error("failed to complete reminder", "reminder_id", rem.ID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to complete reminder")
		return
	}
	s.respondJSON(w, http.StatusOK, completed)
}

func (s *Server) handleCancelReminder(w http.ResponseWriter, r *http.Request) {
	rem, ok := s.ownedReminder(w, r)
	if !ok {
		return
	}
	if err := s.svc.CancelReminder(r.Context(), rem.ID); err != nil {
		if errors.Is(err, core.ErrAlreadyCompleted) {
			s.respondError(w, http.StatusConflict, "reminder is already closed")
			return
		}
		s.logger.Error("failed to cancel reminder", "reminder_id", rem.ID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to cancel reminder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	rem, ok := s.ownedReminder(w, r)
	if !ok {
		return
	}
	notifications, err := s.svc.ListNotifications(rem.ID)
	if err != nil {
		s.logger.Error("failed to list notifications", "reminder_id", rem.ID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []*core.Notification{}
	}
	s.respondJSON(w, http.StatusOK, notifications)
}

// handleCompleteByToken serves the public "mark done" link from reminder
// emails. Token mismatch and expiry are indistinguishable to the caller.
func (s *Server) handleCompleteByToken(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid reminder id", http.StatusBadRequest)
		return
	}
	token := r.URL.Query().Get("token")

	_, err = s.svc.CompleteByToken(r.Context(), id, token, "email_link")
	switch {
	case errors.Is(err, core.ErrNotFound):
		http.Error(w, "reminder not found", http.StatusNotFound)
	case errors.Is(err, core.ErrInvalidToken):
		http.Error(w, "this completion link is invalid or has expired", http.StatusGone)
	case err != nil:
		s.logger.Error("token completion failed", "reminder_id", id, "error", err)
		http.Error(w, "something went wrong", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "Reminder marked as complete. You can close this page.")
	}
}

type updateTimezoneRequest struct {
	Timezone string `json:"timezone"`
}

func (s *Server) handleUpdateTimezone(w http.ResponseWriter, r *http.Request) {
	var req updateTimezoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		s.respondError(w, http.StatusBadRequest, "unknown timezone")
		return
	}
	if err := s.owners.UpdateOwnerTimezone(sessionOwnerID(r), req.Timezone); err != nil {
		s.logger.Error("failed to update timezone", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to update timezone")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"timezone": req.Timezone})
}

type linkTelegramRequest struct {
	ChatID int64 `json:"chat_id"`
}

func (s *Server) handleLinkTelegram(w http.ResponseWriter, r *http.Request) {
	var req linkTelegramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.owners.UpdateOwnerTelegramChatID(sessionOwnerID(r), req.ChatID); err != nil {
		s.logger.Error("failed to link telegram chat", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to link telegram chat")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int64{"chat_id": req.ChatID})
}

// ownedReminder loads the reminder from the URL and enforces ownership
func (s *Server) ownedReminder(w http.ResponseWriter, r *http.Request) (*core.Reminder, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid reminder id")
		return nil, false
	}
	rem, err := s.svc.GetReminder(id)
	if errors.Is(err, core.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "reminder not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to load reminder", "reminder_id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load reminder")
		return nil, false
	}
	if rem.OwnerID != sessionOwnerID(r) {
		s.respondError(w, http.StatusNotFound, "reminder not found")
		return nil, false
	}
	return rem, true
}

func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseOptionalTime(s *string) (*core.TimeOfDay, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := core.ParseTimeOfDay(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
