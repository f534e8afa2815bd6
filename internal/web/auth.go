package web

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/EscobozaEstrada/mrwhite-sub001/internal/core"
)

type contextKey string

const ownerIDKey contextKey = "owner_id"

const sessionName = "reminder_session"

// loginHash computes the HMAC-SHA256 login hash for an email. Clients are
// provisioned with the shared secret out of band.
func loginHash(secret, email string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(email))
	return hex.EncodeToString(mac.Sum(nil))
}

type createOwnerRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Timezone       string `json:"timezone"`
	Locale         string `json:"locale"`
	TelegramChatID *int64 `json:"telegram_chat_id"`
}

func (s *Server) handleCreateOwner(w http.ResponseWriter, r *http.Request) {
	var req createOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" {
		s.respondError(w, http.StatusBadRequest, "name and email are required")
		return
	}

	owner, err := s.owners.CreateOwner(&core.Owner{
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Timezone:       req.Timezone,
		Locale:         req.Locale,
		TelegramChatID: req.TelegramChatID,
	})
	if err != nil {
		s.logger.Error("failed to create owner", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to create owner")
		return
	}
	s.respondJSON(w, http.StatusCreated, owner)
}

type loginRequest struct {
	Email string `json:"email"`
	Hash  string `json:"hash"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	expected := loginHash(s.secret, req.Email)
	if !hmac.Equal([]byte(expected), []byte(req.Hash)) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	owner, err := s.owners.GetOwnerByEmail(req.Email)
	if errors.Is(err, core.ErrNotFound) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.logger.Error("failed to load owner", "error", err)
		s.respondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	session, _ := s.sessions.Get(r, sessionName)
	session.Values["owner_id"] = owner.ID
	if err := session.Save(r, w); err != nil {
		s.logger.Error("failed to save session", "error", err)
		s.respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	s.respondJSON(w, http.StatusOK, owner)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := s.sessions.Get(r, sessionName)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		s.logger.Error("failed to clear session", "error", err)
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// requireAuth resolves the session owner and stores the id on the request
// context
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := s.sessions.Get(r, sessionName)
		ownerID, ok := session.Values["owner_id"].(int64)
		if !ok {
			s.respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionOwnerID reads the authenticated owner id from the context
func sessionOwnerID(r *http.Request) int64 {
	id, _ := r.Context().Value(ownerIDKey).(int64)
	return id
}
