package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AdeepaK2/gear-up-be-sub000/internal/service"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/sse"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/storage"
)

// Server holds all dependencies for the REST API handlers.
type Server struct {
	notificationSvc service.NotificationService
	registry        *sse.Registry
	reminders       storage.ReminderStore
	logger          *slog.Logger
	jwtSecret       string
}

// New creates a new API Server backed by the provided services.
func New(notificationSvc service.NotificationService, registry *sse.Registry, reminders storage.ReminderStore, jwtSecret string, logger *slog.Logger) *Server {
	return &Server{
		notificationSvc: notificationSvc,
		registry:        registry,
		reminders:       reminders,
		logger:          logger,
		jwtSecret:       jwtSecret,
	}
}

// Mount registers all API routes under the given router. Every route
// requires a valid bearer token.
func (s *Server) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.jwtSecret))

		// Push stream
		r.Get("/notifications/stream", s.handleStream)

		// Notifications
		r.Post("/notifications", s.handleCreateNotification)
		r.Post("/notifications/bulk", s.handleBulkSend)
		r.Get("/notifications", s.handleListNotifications)
		r.Get("/notifications/unread", s.handleListUnread)
		r.Get("/notifications/unread/count", s.handleUnreadCount)
		r.Put("/notifications/read-all", s.handleMarkAllRead)
		r.Put("/notifications/{id}/read", s.handleMarkRead)
		r.Delete("/notifications/{id}", s.handleDeleteNotification)
		r.Delete("/notifications", s.handleDeleteAllForUser)

		// Administration
		r.Post("/admin/broadcast", s.handleBroadcast)
		r.Post("/admin/reminders", s.handleScheduleReminder)
		r.Get("/admin/connections", s.handleConnectionStats)
		r.Post("/admin/disconnect", s.handleDisconnect)
	})
}

// ─── Shared helpers ───────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the service error taxonomy to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var notFound *service.NotFoundError
	var ownership *service.OwnershipError
	var validation *service.ValidationError

	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &ownership):
		writeError(w, http.StatusForbidden, ownership.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(b)); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}
