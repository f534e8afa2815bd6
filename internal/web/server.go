// Package web exposes the reminder engine over HTTP: a JSON API behind
// session auth, the public email completion link, health and metrics.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EscobozaEstrada/mrwhite-sub001/internal/core"
)

// OwnerStore is the slice of the storage layer the web layer needs for
// accounts
type OwnerStore interface {
	CreateOwner(o *core.Owner) (*core.Owner, error)
	GetOwnerByEmail(email string) (*core.Owner, error)
	GetOwnerByID(id int64) (*core.Owner, error)
	UpdateOwnerTimezone(id int64, timezone string) error
	UpdateOwnerTelegramChatID(id int64, chatID int64) error
}

// Server is the HTTP server
type Server struct {
	svc      *core.Service
	owners   OwnerStore
	sessions *sessions.CookieStore
	secret   string
	logger   *slog.Logger
	router   chi.Router
	http     *http.Server
}

// NewServer creates the HTTP server. secret signs both session cookies and
// login hashes.
func NewServer(addr string, svc *core.Service, owners OwnerStore, secret string, logger *slog.Logger) *Server {
	s := &Server{
		svc:      svc,
		owners:   owners,
		sessions: sessions.NewCookieStore([]byte(secret)),
		secret:   secret,
		logger:   logger,
	}
	s.sessions.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Public: the "mark done" link embedded in reminder emails.
	r.Get("/reminders/{id}/complete", s.handleCompleteByToken)

	r.Route("/api", func(r chi.Router) {
		r.Post("/owners", s.handleCreateOwner)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Put("/owners/timezone", s.handleUpdateTimezone)
			r.Put("/owners/telegram", s.handleLinkTelegram)

			r.Get("/reminders", s.handleListReminders)
			r.Post("/reminders", s.handleCreateReminder)
			r.Get("/reminders/{id}", s.handleGetReminder)
			r.Patch("/reminders/{id}", s.handleUpdateReminder)
			r.Delete("/reminders/{id}", s.handleDeleteReminder)
			r.Post("/reminders/{id}/complete", s.handleCompleteReminder)
			r.Post("/reminders/{id}/cancel", s.handleCancelReminder)
			r.Get("/reminders/{id}/notifications", s.handleListNotifications)
		})
	})

	s.router = r
	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts serving requests. Blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
