package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/outreach/internal/web/config"
	"github.com/foxzi/outreach/internal/web/db"
	"github.com/foxzi/outreach/internal/web/docstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the audit schema and the document store",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.AuditPath)
	if err != nil {
		return err
	}
	defer database.Close()

	before, err := database.Version()
	if err != nil {
		return err
	}
	if err := database.Migrate(); err != nil {
		return err
	}

	store, err := docstore.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("audit schema %d -> %d, store %s ready\n", before, db.SchemaVersion(), store.Path())
	return nil
}
