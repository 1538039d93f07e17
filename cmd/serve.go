package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AdeepaK2/gear-up-be-sub000/internal/api"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/config"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/dispatch"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/event"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/logger"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/mailer"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/metrics"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/scheduler"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/server"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/service"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/sse"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP API server, the async notification dispatcher and the periodic jobs.",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}

	log, err := logger.New(cfg.LogDir(), cfg.SlogLevel(), logger.Options{
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Stderr:     true,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, fresh, err := storage.NewSQLiteDB(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if fresh {
		log.Info("created new database", "path", cfg.DBPath())
	}

	store := storage.NewSQLiteNotificationStore(db)
	reminders := storage.NewSQLiteReminderStore(db)
	registry := sse.NewRegistry(cfg.SSEIdleTimeout, log)

	var mail service.Mailer
	if cfg.MailEnabled() {
		mail = mailer.NewSMTPMailer(mailer.Config{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			FromAddr:   cfg.SMTPFromAddr,
			ToAddrs:    cfg.SMTPToAddrs,
			Encryption: cfg.SMTPEncryption,
		})
		log.Info("email mirroring enabled", "host", cfg.SMTPHost)
	}

	svc := service.NewNotificationService(store, registry, mail, log)

	pool := dispatch.NewPool(dispatch.Config{
		CoreWorkers: cfg.DispatchCoreWorkers,
		MaxWorkers:  cfg.DispatchMaxWorkers,
		QueueSize:   cfg.DispatchQueueSize,
		OnReject: func(event.NotificationEvent, error) {
			metrics.DispatchRejected.Inc()
		},
	}, svc.HandleEvent, log)

	publisher := event.NewPublisher(pool, log)

	sched, err := scheduler.New(scheduler.Config{
		Service:           svc,
		Publisher:         publisher,
		Reminders:         reminderSource{store: reminders},
		RetentionDays:     cfg.RetentionDays,
		ReminderLookahead: cfg.ReminderLookahead,
		Logger:            log,
	})
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	apiSrv := api.New(svc, registry, reminders, cfg.JWTSecret, log)
	srv := server.New(apiSrv, cfg.Port, cfg.CORSAllowedOrigins, log)

	log.Info("server starting", "port", cfg.Port, "data_dir", cfg.DataDir)
	runErr := srv.Run(ctx)

	// Drain in-flight notification work, then tear down push channels.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Warn("dispatcher did not drain before deadline", "error", err)
	}
	registry.DisconnectAll()
	if err := sched.Stop(); err != nil {
		log.Warn("scheduler shutdown failed", "error", err)
	}

	return runErr
}

// reminderSource adapts the reminder store to the scheduler's contract:
// claiming marks reminders dispatched, so each is delivered at most once.
type reminderSource struct {
	store storage.ReminderStore
}

func (r reminderSource) DueReminders(ctx context.Context, within time.Duration) ([]scheduler.Reminder, error) {
	due, err := r.store.ClaimDue(ctx, time.Now().UTC().Add(within))
	if err != nil {
		return nil, err
	}
	out := make([]scheduler.Reminder, 0, len(due))
	for _, d := range due {
		out = append(out, scheduler.Reminder{
			RecipientID: d.RecipientID,
			Title:       d.Title,
			Message:     d.Message,
		})
	}
	return out, nil
}
