package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "time/tzdata"

	"github.com/foxzi/outreach/internal/web/config"
	"github.com/foxzi/outreach/internal/web/docstore"
)

var (
	cfgFile   string
	accountID string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "outreach",
	Short: "Outreach - maintenance tool for the outreach document store",
	Long:  `Outreach inspects and repairs send history, previews segment routing and checks ID tokens.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("outreach version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openStore opens the document store named in the config. The web
// server holds an exclusive lock on the file, so this fails while it runs.
func openStore() (*config.Config, *docstore.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if accountID == "" {
		return nil, nil, fmt.Errorf("account uid is required (use --uid)")
	}

	store, err := docstore.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open document store: %w", err)
	}
	return cfg, store, nil
}
