package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/outreach/internal/identity"
	"github.com/foxzi/outreach/internal/web/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "ID token commands",
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify <id_token>",
	Short: "Verify an ID token with the configured provider and print its claims",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenVerify,
}

func init() {
	tokenCmd.AddCommand(tokenVerifyCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var verifier identity.Verifier
	if cfg.Auth.Local.Enabled {
		verifier = auth.NewLocalProvider(&cfg.Auth.Local, cfg.Auth.SessionTTL).Verifier()
	} else {
		v, err := identity.NewOIDCVerifier(ctx, cfg.Auth.OIDC.IssuerURL, cfg.Auth.OIDC.ClientID)
		if err != nil {
			return err
		}
		verifier = v
	}

	p, err := verifier.Verify(ctx, args[0])
	if err != nil {
		return fmt.Errorf("token is invalid: %w", err)
	}

	fmt.Printf("UID:     %s\n", p.UID)
	fmt.Printf("Email:   %s\n", p.Email)
	fmt.Printf("Expires: %s\n", p.ExpiresAt.Format(time.RFC3339))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(p.Claims)
}
