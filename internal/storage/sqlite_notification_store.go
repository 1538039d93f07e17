package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLiteNotificationStore implements NotificationStore backed by SQLite.
type SQLiteNotificationStore struct {
	db *sql.DB
}

// NewSQLiteNotificationStore returns a new SQLiteNotificationStore.
func NewSQLiteNotificationStore(db *sql.DB) *SQLiteNotificationStore {
	return &SQLiteNotificationStore{db: db}
}

// sortColumns whitelists the fields callers may sort by. Anything else
// falls back to created_at.
var sortColumns = map[string]string{
	"id":        "id",
	"createdAt": "created_at",
	"title":     "title",
	"type":      "kind",
	"isRead":    "is_read",
}

// Save inserts the record, assigning ID and CreatedAt.
func (s *SQLiteNotificationStore) Save(ctx context.Context, n *Notification) error {
	n.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (recipient_id, title, message, kind, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.RecipientID, n.Title, n.Message, n.Kind, n.IsRead, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted notification id: %w", err)
	}
	n.ID = id
	return nil
}

// FindByID returns the record or ErrNotFound.
func (s *SQLiteNotificationStore) FindByID(ctx context.Context, id int64) (*Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, recipient_id, title, message, kind, is_read, created_at
		FROM notifications WHERE id = ?`, id)

	var n Notification
	err := row.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.Kind, &n.IsRead, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying notification %d: %w", id, err)
	}
	return &n, nil
}

// FindByRecipient returns one page of the recipient's records with optional
// kind and read-status filters.
func (s *SQLiteNotificationStore) FindByRecipient(ctx context.Context, recipientID string, opts ListOptions) (*Page, error) {
	if opts.Page < 0 {
		opts.Page = 0
	}
	if opts.Size <= 0 {
		opts.Size = 20
	}

	where := []string{"recipient_id = ?"}
	args := []any{recipientID}
	if opts.Kind != nil {
		where = append(where, "kind = ?")
		args = append(args, *opts.Kind)
	}
	if opts.IsRead != nil {
		where = append(where, "is_read = ?")
		args = append(args, *opts.IsRead)
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE "+cond, args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting notifications: %w", err)
	}

	col, ok := sortColumns[opts.SortField]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(opts.SortDir, "asc") {
		dir = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, recipient_id, title, message, kind, is_read, created_at
		FROM notifications WHERE %s
		ORDER BY %s %s
		LIMIT ? OFFSET ?`, cond, col, dir)
	args = append(args, opts.Size, opts.Page*opts.Size)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	items := make([]Notification, 0, opts.Size)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message,
			&n.Kind, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notification rows: %w", err)
	}

	totalPages := int((total + int64(opts.Size) - 1) / int64(opts.Size))
	return &Page{
		Items:      items,
		Page:       opts.Page,
		Size:       opts.Size,
		TotalCount: total,
		TotalPages: totalPages,
	}, nil
}

// FindUnread returns the recipient's unread records, newest first.
func (s *SQLiteNotificationStore) FindUnread(ctx context.Context, recipientID string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, title, message, kind, is_read, created_at
		FROM notifications
		WHERE recipient_id = ? AND is_read = 0
		ORDER BY created_at DESC`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("querying unread notifications: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var items []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message,
			&n.Kind, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning unread notification row: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unread notification rows: %w", err)
	}
	return items, nil
}

// CountUnread returns the recipient's unread record count.
func (s *SQLiteNotificationStore) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0",
		recipientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flips a single record to read.
func (s *SQLiteNotificationStore) MarkRead(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE notifications SET is_read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking notification %d read: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking mark-read result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead flips all of the recipient's unread records to read.
func (s *SQLiteNotificationStore) MarkAllRead(ctx context.Context, recipientID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0",
		recipientID,
	)
	if err != nil {
		return fmt.Errorf("marking all notifications read: %w", err)
	}
	return nil
}

// DeleteByID removes a single record.
func (s *SQLiteNotificationStore) DeleteByID(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting notification %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByRecipient removes all of the recipient's records.
func (s *SQLiteNotificationStore) DeleteByRecipient(ctx context.Context, recipientID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE recipient_id = ?", recipientID)
	if err != nil {
		return fmt.Errorf("deleting notifications for recipient: %w", err)
	}
	return nil
}

// DeleteRead removes read records created before olderThan.
func (s *SQLiteNotificationStore) DeleteRead(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE is_read = 1 AND created_at < ?", olderThan)
	if err != nil {
		return 0, fmt.Errorf("deleting old read notifications: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking cleanup result: %w", err)
	}
	return affected, nil
}
