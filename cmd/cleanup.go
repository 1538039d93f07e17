package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AdeepaK2/gear-up-be-sub000/internal/config"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/logger"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/service"
	"github.com/AdeepaK2/gear-up-be-sub000/internal/storage"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old read notifications",
	Long:  "One-shot retention pass: deletes read notifications older than the given number of days.",
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().Int("days", 0, "Age threshold in days (defaults to NOTIFICATION_RETENTION_DAYS)")
}

// nopSender satisfies service.Sender for offline commands that never fan out.
type nopSender struct{}

func (nopSender) SendToUser(string, any) {}

func runCleanup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	days := cfg.RetentionDays
	if cmd.Flags().Changed("days") {
		days, _ = cmd.Flags().GetInt("days")
	}
	if days <= 0 {
		return fmt.Errorf("days must be positive, got %d", days)
	}

	log, err := logger.New(cfg.LogDir(), cfg.SlogLevel(), logger.Options{
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	db, _, err := storage.NewSQLiteDB(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	svc := service.NewNotificationService(
		storage.NewSQLiteNotificationStore(db), nopSender{}, nil, log)

	removed, err := svc.CleanupOldNotifications(cmd.Context(), days)
	if err != nil {
		return err
	}

	fmt.Printf("removed %d read notifications older than %d days\n", removed, days)
	return nil
}
