// Package scheduler runs the periodic jobs owned by the notification
// backend: retention cleanup of read notifications and appointment
// reminders.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// reminderInterval is how often the reminder job scans for due appointments.
const reminderInterval = 15 * time.Minute

// Reminder is one appointment reminder due for delivery.
type Reminder struct {
	RecipientID string
	Title       string
	Message     string
}

// ReminderSource yields appointment reminders that fall due within the
// given window. The source must return each reminder at most once across
// calls (it owns the dispatched bookkeeping); the business-entity store
// behind it is outside this engine.
type ReminderSource interface {
	DueReminders(ctx context.Context, within time.Duration) ([]Reminder, error)
}

// Publisher emits notification events without blocking.
type Publisher interface {
	PublishAppointmentNotification(recipientID, title, message string)
}

// NotificationCleaner is the slice of the notification service the retention
// job depends on.
type NotificationCleaner interface {
	CleanupOldNotifications(ctx context.Context, daysOld int) (int64, error)
}

// Config holds the scheduler configuration.
type Config struct {
	Service           NotificationCleaner
	Publisher         Publisher
	Reminders         ReminderSource // optional
	RetentionDays     int
	ReminderLookahead time.Duration
	Logger            *slog.Logger
}

// Scheduler manages the periodic jobs using gocron.
type Scheduler struct {
	cron   gocron.Scheduler
	cfg    Config
	logger *slog.Logger
}

// New creates a new Scheduler.
func New(cfg Config) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.ReminderLookahead <= 0 {
		cfg.ReminderLookahead = time.Hour
	}
	return &Scheduler{cron: cron, cfg: cfg, logger: cfg.Logger}, nil
}

// Start registers the jobs and starts the gocron scheduler.
func (s *Scheduler) Start(_ context.Context) error {
	_, err := s.cron.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
		gocron.NewTask(s.runCleanup),
	)
	if err != nil {
		return fmt.Errorf("scheduling retention cleanup: %w", err)
	}

	if s.cfg.Reminders != nil {
		_, err = s.cron.NewJob(
			gocron.DurationJob(reminderInterval),
			gocron.NewTask(s.runReminders),
		)
		if err != nil {
			return fmt.Errorf("scheduling appointment reminders: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		"retention_days", s.cfg.RetentionDays,
		"reminders_enabled", s.cfg.Reminders != nil)
	return nil
}

// Stop shuts down the gocron scheduler.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.cfg.Service.CleanupOldNotifications(ctx, s.cfg.RetentionDays); err != nil {
		s.logger.Error("retention cleanup failed", "error", err)
	}
}

func (s *Scheduler) runReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	reminders, err := s.cfg.Reminders.DueReminders(ctx, s.cfg.ReminderLookahead)
	if err != nil {
		s.logger.Error("loading due appointment reminders failed", "error", err)
		return
	}
	for _, rem := range reminders {
		s.cfg.Publisher.PublishAppointmentNotification(rem.RecipientID, rem.Title, rem.Message)
	}
	if len(reminders) > 0 {
		s.logger.Info("published appointment reminders", "count", len(reminders))
	}
}
