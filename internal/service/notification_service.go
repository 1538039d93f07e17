package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/AdeepaK2/gear-up-be-sub000/internal/event"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/metrics"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/storage"
)

// maxMessageLength bounds the persisted message body, in characters.
const maxMessageLength = 1000

// Sender fans a delivery payload out to a recipient's live push channels.
// "No live session" is a no-op, never an error.
type Sender interface {
	SendToUser(recipientID string, payload any)
}

// Mailer mirrors a notification over email. Implementations decide the
// destination; failures are logged by the service, never propagated.
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}

// CreateNotificationInput is the request to persist and deliver one
// notification.
type CreateNotificationInput struct {
	RecipientID string
	Title       string
	Message     string
	Kind        string
}

// DeliveryPayload is the JSON payload pushed on notification events.
type DeliveryPayload struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// NotificationService is the public operation surface of the notification
// engine: create/send (sync and async), queries, mark-read, deletes and
// retention cleanup.
type NotificationService interface {
	// CreateAndSend persists a record, attempts push delivery, and returns
	// the persisted record. The caller sees persistence failures.
	CreateAndSend(ctx context.Context, in CreateNotificationInput) (*storage.Notification, error)
	// CreateAndSendAsync is the dispatcher-side variant: identical effect,
	// but failures are logged and swallowed since no caller remains.
	CreateAndSendAsync(ctx context.Context, in CreateNotificationInput)
	// HandleEvent adapts a dispatched domain event to the async path.
	HandleEvent(ctx context.Context, ev event.NotificationEvent)
	// SendToMultipleUsers persists one record per recipient and fans each
	// out; a failure for one recipient does not stop the others.
	SendToMultipleUsers(ctx context.Context, recipientIDs []string, title, message, kind string)

	GetNotifications(ctx context.Context, recipientID string, opts storage.ListOptions) (*storage.Page, error)
	GetUnread(ctx context.Context, recipientID string) ([]storage.Notification, error)
	GetUnreadCount(ctx context.Context, recipientID string) (int64, error)
	// MarkAsRead flips one record to read after verifying actingUserID owns it.
	MarkAsRead(ctx context.Context, id int64, actingUserID string) error
	MarkAllAsRead(ctx context.Context, recipientID string) error
	// DeleteNotification removes one record after verifying ownership.
	DeleteNotification(ctx context.Context, id int64, actingUserID string) error
	DeleteAllForUser(ctx context.Context, recipientID string) error
	// CleanupOldNotifications removes read records older than daysOld days
	// and reports how many were removed.
	CleanupOldNotifications(ctx context.Context, daysOld int) (int64, error)
}

// notificationServiceImpl implements NotificationService.
type notificationServiceImpl struct {
	store    storage.NotificationStore
	registry Sender
	mailer   Mailer // nil when email mirroring is disabled
	logger   *slog.Logger
}

// NewNotificationService creates a NotificationService. mailer may be nil.
func NewNotificationService(store storage.NotificationStore, registry Sender, mailer Mailer, logger *slog.Logger) NotificationService {
	return &notificationServiceImpl{
		store:    store,
		registry: registry,
		mailer:   mailer,
		logger:   logger,
	}
}

func (s *notificationServiceImpl) CreateAndSend(ctx context.Context, in CreateNotificationInput) (*storage.Notification, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	n := &storage.Notification{
		RecipientID: in.RecipientID,
		Title:       in.Title,
		Message:     in.Message,
		Kind:        in.Kind,
		IsRead:      false,
	}
	if err := s.store.Save(ctx, n); err != nil {
		return nil, &StorageError{Op: "save notification", Err: err}
	}
	metrics.NotificationsCreated.WithLabelValues(n.Kind).Inc()

	s.logger.Debug("notification saved",
		"id", n.ID, "recipient_id", n.RecipientID, "kind", n.Kind)

	s.deliver(ctx, n)
	return n, nil
}

func (s *notificationServiceImpl) CreateAndSendAsync(ctx context.Context, in CreateNotificationInput) {
	if _, err := s.CreateAndSend(ctx, in); err != nil {
		// Nobody is left to report to: the notification is lost, not retried.
		s.logger.Error("async notification failed",
			"recipient_id", in.RecipientID, "kind", in.Kind, "error", err)
	}
}

func (s *notificationServiceImpl) HandleEvent(ctx context.Context, ev event.NotificationEvent) {
	s.CreateAndSendAsync(ctx, CreateNotificationInput{
		RecipientID: ev.RecipientID,
		Title:       ev.Title,
		Message:     ev.Message,
		Kind:        string(ev.Kind),
	})
}

func (s *notificationServiceImpl) SendToMultipleUsers(ctx context.Context, recipientIDs []string, title, message, kind string) {
	s.logger.Info("sending notification to multiple users",
		"recipients", len(recipientIDs), "kind", kind)
	for _, id := range recipientIDs {
		s.CreateAndSendAsync(ctx, CreateNotificationInput{
			RecipientID: id,
			Title:       title,
			Message:     message,
			Kind:        kind,
		})
	}
}

// deliver fans the record out to the recipient's live channels and, for
// SYSTEM notifications, mirrors it over email when a mailer is configured.
func (s *notificationServiceImpl) deliver(ctx context.Context, n *storage.Notification) {
	s.registry.SendToUser(n.RecipientID, toDeliveryPayload(n))

	if s.mailer != nil && n.Kind == string(event.KindSystem) {
		mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.mailer.Send(mailCtx, n.Title, n.Message); err != nil {
			s.logger.Warn("email mirror failed",
				"notification_id", n.ID, "error", err)
		}
	}
}

func (s *notificationServiceImpl) GetNotifications(ctx context.Context, recipientID string, opts storage.ListOptions) (*storage.Page, error) {
	page, err := s.store.FindByRecipient(ctx, recipientID, opts)
	if err != nil {
		return nil, &StorageError{Op: "list notifications", Err: err}
	}
	return page, nil
}

func (s *notificationServiceImpl) GetUnread(ctx context.Context, recipientID string) ([]storage.Notification, error) {
	items, err := s.store.FindUnread(ctx, recipientID)
	if err != nil {
		return nil, &StorageError{Op: "list unread notifications", Err: err}
	}
	return items, nil
}

func (s *notificationServiceImpl) GetUnreadCount(ctx context.Context, recipientID string) (int64, error) {
	count, err := s.store.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, &StorageError{Op: "count unread notifications", Err: err}
	}
	return count, nil
}

func (s *notificationServiceImpl) MarkAsRead(ctx context.Context, id int64, actingUserID string) error {
	if err := s.authorize(ctx, id, actingUserID); err != nil {
		return err
	}
	if err := s.store.MarkRead(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &NotFoundError{Resource: "notification", ID: strconv.FormatInt(id, 10)}
		}
		return &StorageError{Op: "mark notification read", Err: err}
	}
	return nil
}

func (s *notificationServiceImpl) MarkAllAsRead(ctx context.Context, recipientID string) error {
	if err := s.store.MarkAllRead(ctx, recipientID); err != nil {
		return &StorageError{Op: "mark all notifications read", Err: err}
	}
	return nil
}

func (s *notificationServiceImpl) DeleteNotification(ctx context.Context, id int64, actingUserID string) error {
	if err := s.authorize(ctx, id, actingUserID); err != nil {
		return err
	}
	if err := s.store.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &NotFoundError{Resource: "notification", ID: strconv.FormatInt(id, 10)}
		}
		return &StorageError{Op: "delete notification", Err: err}
	}
	return nil
}

func (s *notificationServiceImpl) DeleteAllForUser(ctx context.Context, recipientID string) error {
	if err := s.store.DeleteByRecipient(ctx, recipientID); err != nil {
		return &StorageError{Op: "delete notifications for user", Err: err}
	}
	return nil
}

func (s *notificationServiceImpl) CleanupOldNotifications(ctx context.Context, daysOld int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -daysOld)
	removed, err := s.store.DeleteRead(ctx, cutoff)
	if err != nil {
		return 0, &StorageError{Op: "cleanup old notifications", Err: err}
	}
	s.logger.Info("cleaned up old read notifications",
		"older_than", cutoff.Format(time.RFC3339), "removed", removed)
	return removed, nil
}

// authorize loads the record and verifies the acting user owns it.
func (s *notificationServiceImpl) authorize(ctx context.Context, id int64, actingUserID string) error {
	n, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &NotFoundError{Resource: "notification", ID: strconv.FormatInt(id, 10)}
		}
		return &StorageError{Op: "load notification", Err: err}
	}
	if n.RecipientID != actingUserID {
		return &OwnershipError{Resource: "notification", ID: id, ActorID: actingUserID}
	}
	return nil
}

func validateInput(in CreateNotificationInput) error {
	if in.RecipientID == "" {
		return &ValidationError{Field: "recipientId", Message: "must not be empty"}
	}
	if in.Title == "" {
		return &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if utf8.RuneCountInString(in.Message) > maxMessageLength {
		return &ValidationError{
			Field:   "message",
			Message: fmt.Sprintf("must not exceed %d characters", maxMessageLength),
		}
	}
	if in.Kind == "" {
		return &ValidationError{Field: "kind", Message: "must not be empty"}
	}
	return nil
}

// toDeliveryPayload converts a stored record to the wire payload.
func toDeliveryPayload(n *storage.Notification) DeliveryPayload {
	return DeliveryPayload{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Kind,
		Timestamp: n.CreatedAt.Format(time.RFC3339),
	}
}
