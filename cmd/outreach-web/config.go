package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foxzi/outreach/internal/web/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Document store: %s\n", cfg.Database.Path)
	fmt.Printf("  Audit database: %s\n", cfg.Database.AuditPath)
	fmt.Printf("  Local auth: %v (%d users)\n", cfg.Auth.Local.Enabled, len(cfg.Auth.Local.Users))
	fmt.Printf("  OIDC auth: %v\n", cfg.Auth.OIDC.Enabled)
	if cfg.Auth.OIDC.Enabled {
		fmt.Printf("    Issuer: %s\n", cfg.Auth.OIDC.IssuerURL)
	}
	if cfg.Cache.RedisAddr != "" {
		fmt.Printf("  Principal cache: redis %s\n", cfg.Cache.RedisAddr)
	} else {
		fmt.Println("  Principal cache: memory")
	}
	fmt.Printf("  Mail relay: %s (%s)\n", cfg.Mail.RelayAddr, cfg.Mail.Security)
	fmt.Printf("  History: limit %d, page size %d, zone %s\n", cfg.History.Limit, cfg.History.PageSize, cfg.History.Timezone)
	fmt.Printf("  Verify CORS origins: %s\n", strings.Join(cfg.Verify.CORSOrigins, ", "))
	fmt.Printf("  Audit retention: %s\n", cfg.Audit.Retention)
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics: %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}

	return nil
}
