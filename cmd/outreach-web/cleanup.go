package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/outreach/internal/web/config"
	"github.com/foxzi/outreach/internal/web/db"
	"github.com/foxzi/outreach/internal/web/logging"
	"github.com/foxzi/outreach/internal/web/repository"
	"github.com/foxzi/outreach/internal/web/worker"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete audit log entries older than the retention period",
	RunE:  runCleanup,
}

var (
	cleanupAuditDays int
	cleanupDryRun    bool
)

func init() {
	cleanupCmd.Flags().IntVar(&cleanupAuditDays, "audit-days", 0, "Delete audit log entries older than N days (default: audit.retention)")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be deleted without actually deleting")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.AuditPath)
	if err != nil {
		return err
	}
	defer database.Close()

	retention := cfg.Audit.Retention
	if cleanupAuditDays > 0 {
		retention = time.Duration(cleanupAuditDays) * 24 * time.Hour
	}

	logger, closer := logging.New(cfg.Logging)
	defer closer.Close()
	slog.SetDefault(logger)

	ctx := context.Background()
	repo := repository.NewAuditRepository(database.DB)
	pruner := worker.NewAuditPruner(repo, retention, logger)
	cutoff := pruner.Cutoff()

	if cleanupDryRun {
		n, err := repo.CountBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		fmt.Println("Dry run mode - no data will be deleted")
		fmt.Printf("Audit log entries older than %s: %d\n", cutoff.Format(time.DateTime), n)
		return nil
	}

	deleted, err := pruner.Prune(ctx)
	if err != nil {
		return fmt.Errorf("failed to clean up audit log: %w", err)
	}

	fmt.Printf("Deleted %d audit log entries older than %s\n", deleted, cutoff.Format(time.DateTime))
	return nil
}
