package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AdeepaK2/gear-up-be-sub000/internal/service"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/storage"
)

const errInvalidJSONBody = "invalid JSON body"

type createNotificationRequest struct {
	RecipientID string `json:"recipientId"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	Type        string `json:"type"`
}

type bulkSendRequest struct {
	RecipientIDs []string `json:"recipientIds"`
	Title        string   `json:"title"`
	Message      string   `json:"message"`
	Type         string   `json:"type"`
}

// handleCreateNotification persists and delivers one notification
// synchronously, returning the persisted record.
func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}

	n, err := s.notificationSvc.CreateAndSend(r.Context(), service.CreateNotificationInput{
		RecipientID: req.RecipientID,
		Title:       req.Title,
		Message:     req.Message,
		Kind:        req.Type,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// handleBulkSend persists and delivers one notification per recipient.
// Fire-and-forget for the caller beyond the persistence attempt.
func (s *Server) handleBulkSend(w http.ResponseWriter, r *http.Request) {
	var req bulkSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}
	if len(req.RecipientIDs) == 0 {
		writeError(w, http.StatusBadRequest, "recipientIds must not be empty")
		return
	}

	s.notificationSvc.SendToMultipleUsers(r.Context(), req.RecipientIDs, req.Title, req.Message, req.Type)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleListNotifications returns a page of the caller's notifications.
// Query parameters: page, size, sort, direction, type, isRead.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		Page:      intParam(q.Get("page"), 0),
		Size:      intParam(q.Get("size"), 20),
		SortField: q.Get("sort"),
		SortDir:   q.Get("direction"),
	}
	if v := q.Get("type"); v != "" {
		opts.Kind = &v
	}
	if v := q.Get("isRead"); v != "" {
		isRead, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "isRead must be true or false")
			return
		}
		opts.IsRead = &isRead
	}

	page, err := s.notificationSvc.GetNotifications(r.Context(), currentUserID(r.Context()), opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleListUnread returns the caller's unread notifications, newest first.
func (s *Server) handleListUnread(w http.ResponseWriter, r *http.Request) {
	items, err := s.notificationSvc.GetUnread(r.Context(), currentUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []storage.Notification{}
	}
	writeJSON(w, http.StatusOK, items)
}

// handleUnreadCount returns the caller's unread notification count.
func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.notificationSvc.GetUnreadCount(r.Context(), currentUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// handleMarkRead marks one notification read after an ownership check.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := s.notificationSvc.MarkAsRead(r.Context(), id, currentUserID(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMarkAllRead marks all of the caller's notifications read.
func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := s.notificationSvc.MarkAllAsRead(r.Context(), currentUserID(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDeleteNotification deletes one notification after an ownership check.
func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := s.notificationSvc.DeleteNotification(r.Context(), id, currentUserID(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDeleteAllForUser deletes every notification of the caller.
func (s *Server) handleDeleteAllForUser(w http.ResponseWriter, r *http.Request) {
	if err := s.notificationSvc.DeleteAllForUser(r.Context(), currentUserID(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type broadcastRequest struct {
	RecipientIDs []string `json:"recipientIds"`
	Title        string   `json:"title"`
	Message      string   `json:"message"`
	Type         string   `json:"type"`
	// Transient delivers to live channels only, without persisting records.
	Transient bool `json:"transient"`
}

// transientAnnouncement is the payload pushed for non-persisted broadcasts.
// It carries no record id because nothing is stored.
type transientAnnouncement struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// handleBroadcast sends a notification to the listed recipients, or to every
// currently connected recipient when the list is empty. The default path
// persists one record per recipient; transient broadcasts push to live
// channels only.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}

	if req.Transient {
		payload := transientAnnouncement{
			Title:     req.Title,
			Message:   req.Message,
			Type:      req.Type,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		recipients := len(req.RecipientIDs)
		if recipients == 0 {
			recipients = s.registry.TotalConnectedUsers()
			s.registry.BroadcastToAll(payload)
		} else {
			s.registry.SendToUsers(req.RecipientIDs, payload)
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "accepted", "transient": true, "recipients": recipients,
		})
		return
	}

	ids := req.RecipientIDs
	if len(ids) == 0 {
		ids = s.registry.ConnectedRecipients()
	}
	s.notificationSvc.SendToMultipleUsers(r.Context(), ids, req.Title, req.Message, req.Type)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "recipients": len(ids)})
}

type scheduleReminderRequest struct {
	RecipientID string    `json:"recipientId"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	RemindAt    time.Time `json:"remindAt"`
}

// handleScheduleReminder queues an appointment reminder; the periodic
// reminder job picks it up once remindAt falls inside the lookahead window.
func (s *Server) handleScheduleReminder(w http.ResponseWriter, r *http.Request) {
	var req scheduleReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}
	if req.RecipientID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "recipientId and title must not be empty")
		return
	}
	if req.RemindAt.IsZero() {
		writeError(w, http.StatusBadRequest, "remindAt must be set")
		return
	}

	rem := &storage.AppointmentReminder{
		RecipientID: req.RecipientID,
		Title:       req.Title,
		Message:     req.Message,
		RemindAt:    req.RemindAt,
	}
	if err := s.reminders.Add(r.Context(), rem); err != nil {
		s.logger.Error("queueing reminder failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

// handleConnectionStats reports registry introspection data. An optional
// recipientId query parameter narrows the count to one recipient.
func (s *Server) handleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"totalConnectedUsers": s.registry.TotalConnectedUsers(),
	}
	if id := r.URL.Query().Get("recipientId"); id != "" {
		stats["recipientId"] = id
		stats["connectionCount"] = s.registry.ConnectionCount(id)
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleDisconnect force-closes the channels of one recipient, or of all
// recipients when no recipientId is given.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientID string `json:"recipientId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}
	if req.RecipientID != "" {
		s.registry.DisconnectUser(req.RecipientID)
	} else {
		s.registry.DisconnectAll()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
