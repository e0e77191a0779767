package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/outreach/internal/history"
	"github.com/foxzi/outreach/internal/web/repository"
)

var (
	inspectFile  string
	inspectLimit int
	migrateApply bool
	exportFormat string
	exportOutput string
	exportLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Send history commands",
}

var historyInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Classify history records and list failures",
	Long: `Classify every history record of an account (or of a JSON array file
exported from another store) and print the counters and failed records.`,
	RunE: runHistoryInspect,
}

var historyMigrateStatusCmd = &cobra.Command{
	Use:   "migrate-status",
	Short: "Rewrite legacy \"sent\" status values to 送信済",
	RunE:  runHistoryMigrateStatus,
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export history as CSV or XLSX",
	RunE:  runHistoryExport,
}

func init() {
	historyCmd.PersistentFlags().StringVar(&accountID, "uid", "", "Account uid")

	historyInspectCmd.Flags().StringVarP(&inspectFile, "file", "f", "", "Read records from a JSON array file instead of the store")
	historyInspectCmd.Flags().IntVar(&inspectLimit, "limit", 200, "Maximum number of failed records to print")

	historyMigrateStatusCmd.Flags().BoolVar(&migrateApply, "apply", false, "Apply changes (default is a dry run)")

	historyExportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Output format (csv, xlsx)")
	historyExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: history_<timestamp>.<format>)")
	historyExportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Maximum number of records, newest first (default: history.limit)")

	historyCmd.AddCommand(historyInspectCmd, historyMigrateStatusCmd, historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}

func loadRecords(ctx context.Context) ([]history.Record, error) {
	if inspectFile != "" {
		data, err := os.ReadFile(inspectFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", inspectFile, err)
		}
		var arr []map[string]any
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, fmt.Errorf("JSON must be an array of records: %w", err)
		}
		recs := make([]history.Record, len(arr))
		for i, fields := range arr {
			recs[i] = history.Record{ID: fmt.Sprintf("#%d", i), Fields: fields}
		}
		return recs, nil
	}

	_, store, err := openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return repository.NewHistoryRepository(store).All(ctx, accountID)
}

func runHistoryInspect(cmd *cobra.Command, args []string) error {
	if inspectFile == "" && cfgFile == "" {
		return fmt.Errorf("either --file or a config file (-c) is required")
	}

	recs, err := loadRecords(context.Background())
	if err != nil {
		return err
	}

	rows := history.NormalizeAll(recs, time.Local)
	s := history.Summarize(rows)
	fmt.Printf("total=%d sent=%d failed=%d targetOut=%d\n", s.Total, s.Sent, s.Failed, s.TargetOut)

	failed := history.Failures(recs, inspectLimit)
	if len(failed) == 0 {
		return nil
	}

	fmt.Printf("--- failed records (up to %d) ---\n", inspectLimit)
	for _, rec := range failed {
		status, _ := json.Marshal(rec.Fields["status"])
		response, _ := json.Marshal(rec.Fields["response"])
		fmt.Printf("[%s] status=%s response=%s\n", rec.ID, status, response)
	}
	return nil
}

func runHistoryMigrateStatus(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	repo := repository.NewHistoryRepository(store)

	recs, err := repo.All(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	updates := history.StatusUpdates(recs)
	fmt.Printf("Found %d records with status %q under account %s\n", len(updates), history.LegacySentStatus, accountID)
	for _, rec := range recs {
		if _, ok := updates[rec.ID]; !ok {
			continue
		}
		sentAt := "-"
		if s, ok := history.SentAt(rec.Fields); ok {
			sentAt = time.Unix(s, 0).Format(time.DateTime)
		}
		fmt.Printf("  %s tel=%v sentAt=%s\n", rec.ID, rec.Fields["tel"], sentAt)
	}

	if !migrateApply {
		fmt.Println("Dry run mode - no changes applied (use --apply)")
		return nil
	}
	if len(updates) == 0 {
		return nil
	}

	if err := repo.SetFields(ctx, accountID, updates); err != nil {
		return fmt.Errorf("failed to update history: %w", err)
	}
	fmt.Printf("Updated %d records\n", len(updates))
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(exportFormat)
	if format != "csv" && format != "xlsx" {
		return fmt.Errorf("unsupported format %q (use csv or xlsx)", exportFormat)
	}

	cfg, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	loc, err := cfg.History.Location()
	if err != nil {
		return fmt.Errorf("invalid history.timezone: %w", err)
	}

	limit := exportLimit
	if limit <= 0 {
		limit = cfg.History.Limit
	}

	recs, err := repository.NewHistoryRepository(store).Latest(context.Background(), accountID, limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	rows := history.NormalizeAll(recs, loc)

	path := exportOutput
	if path == "" {
		path = history.ExportFilename(time.Now().In(loc), format)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if format == "xlsx" {
		err = history.WriteXLSX(f, rows)
	} else {
		err = history.WriteCSV(f, rows)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "File:\t%s\n", path)
	fmt.Fprintf(w, "Rows:\t%d\n", len(rows))
	w.Flush()
	return nil
}
