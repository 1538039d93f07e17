package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"
)

// AppointmentReminder is a queued reminder waiting for its remind_at time.
// Business modules enqueue reminders; the periodic reminder job claims the
// due ones and turns each into a notification event.
type AppointmentReminder struct {
	ID          int64     `json:"id"`
	RecipientID string    `json:"recipientId"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	RemindAt    time.Time `json:"remindAt"`
}

// ReminderStore persists scheduled appointment reminders. Implementations
// must be safe for concurrent use.
type ReminderStore interface {
	// Add queues a reminder, assigning its ID.
	Add(ctx context.Context, r *AppointmentReminder) error
	// ClaimDue returns reminders due at or before until and marks them
	// dispatched in the same transaction, so each reminder is returned at
	// most once across calls.
	ClaimDue(ctx context.Context, until time.Time) ([]AppointmentReminder, error)
}

// SQLiteReminderStore implements ReminderStore backed by SQLite.
type SQLiteReminderStore struct {
	db *sql.DB
}

// NewSQLiteReminderStore returns a new SQLiteReminderStore.
func NewSQLiteReminderStore(db *sql.DB) *SQLiteReminderStore {
	return &SQLiteReminderStore{db: db}
}

// Add queues a reminder, assigning its ID.
func (s *SQLiteReminderStore) Add(ctx context.Context, r *AppointmentReminder) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO appointment_reminders (recipient_id, title, message, remind_at)
		VALUES (?, ?, ?, ?)`,
		r.RecipientID, r.Title, r.Message, r.RemindAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting reminder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted reminder id: %w", err)
	}
	r.ID = id
	return nil
}

// ClaimDue returns the undispatched reminders due at or before until and
// marks them dispatched, all inside one transaction.
func (s *SQLiteReminderStore) ClaimDue(ctx context.Context, until time.Time) ([]AppointmentReminder, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claiming reminders: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, recipient_id, title, message, remind_at
		FROM appointment_reminders
		WHERE dispatched = 0 AND remind_at <= ?
		ORDER BY remind_at`, until.UTC())
	if err != nil {
		rollback(tx)
		return nil, fmt.Errorf("querying due reminders: %w", err)
	}

	var due []AppointmentReminder
	for rows.Next() {
		var r AppointmentReminder
		if err := rows.Scan(&r.ID, &r.RecipientID, &r.Title, &r.Message, &r.RemindAt); err != nil {
			_ = rows.Close()
			rollback(tx)
			return nil, fmt.Errorf("scanning reminder row: %w", err)
		}
		due = append(due, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		rollback(tx)
		return nil, fmt.Errorf("iterating reminder rows: %w", err)
	}
	if err := rows.Close(); err != nil {
		rollback(tx)
		return nil, fmt.Errorf("closing reminder rows: %w", err)
	}

	if len(due) > 0 {
		placeholders := make([]string, len(due))
		args := make([]any, len(due))
		for i, r := range due {
			placeholders[i] = "?"
			args[i] = r.ID
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE appointment_reminders SET dispatched = 1 WHERE id IN ("+strings.Join(placeholders, ",")+")",
			args...,
		); err != nil {
			rollback(tx)
			return nil, fmt.Errorf("marking reminders dispatched: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claiming reminders: %w", err)
	}
	return due, nil
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		log.Printf("failed to rollback reminder claim: %v", err)
	}
}
