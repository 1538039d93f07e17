package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested notification does not exist.
var ErrNotFound = errors.New("storage: notification not found")

// Notification is a persisted notification record. ID and CreatedAt are
// assigned on save and immutable afterwards; IsRead is the only mutable
// field and only ever transitions false to true.
type Notification struct {
	ID          int64     `json:"id"`
	RecipientID string    `json:"recipientId"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Kind        string    `json:"type"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListOptions controls paginated recipient queries. Kind and IsRead are
// optional filters; nil means no filtering on that field.
type ListOptions struct {
	Page      int
	Size      int
	SortField string
	SortDir   string
	Kind      *string
	IsRead    *bool
}

// Page is one page of notification records plus paging metadata.
type Page struct {
	Items      []Notification `json:"items"`
	Page       int            `json:"page"`
	Size       int            `json:"size"`
	TotalCount int64          `json:"totalCount"`
	TotalPages int            `json:"totalPages"`
}

// NotificationStore defines the persistence contract for notification
// records. Implementations must be safe for concurrent use.
type NotificationStore interface {
	// Save inserts the record, assigning ID and CreatedAt.
	Save(ctx context.Context, n *Notification) error
	// FindByID returns the record or ErrNotFound.
	FindByID(ctx context.Context, id int64) (*Notification, error)
	// FindByRecipient returns one page of the recipient's records.
	FindByRecipient(ctx context.Context, recipientID string, opts ListOptions) (*Page, error)
	// FindUnread returns the recipient's unread records, newest first.
	FindUnread(ctx context.Context, recipientID string) ([]Notification, error)
	// CountUnread returns the recipient's unread record count.
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	// MarkRead flips a single record to read. Missing id is ErrNotFound.
	MarkRead(ctx context.Context, id int64) error
	// MarkAllRead flips all of the recipient's unread records to read.
	MarkAllRead(ctx context.Context, recipientID string) error
	// DeleteByID removes a single record. Missing id is ErrNotFound.
	DeleteByID(ctx context.Context, id int64) error
	// DeleteByRecipient removes all of the recipient's records.
	DeleteByRecipient(ctx context.Context, recipientID string) error
	// DeleteRead removes read records created before olderThan and reports
	// how many were removed.
	DeleteRead(ctx context.Context, olderThan time.Time) (int64, error)
}
