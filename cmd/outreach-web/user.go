package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/foxzi/outreach/internal/web/config"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Local user commands",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Print a local user entry for auth.local.users",
	Long: `Prompt for a password and print a YAML entry with a bcrypt hash,
ready to paste under auth.local.users in the configuration file.`,
	RunE: runUserCreate,
}

var (
	userEmail    string
	userUID      string
	userPassword string
)

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "User email")
	userCreateCmd.Flags().StringVar(&userUID, "uid", "", "Account uid (default: random)")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "User password (will prompt if not provided)")
	userCreateCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userCreateCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	password := userPassword
	if password == "" {
		first, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		again, err := promptPassword("Confirm password: ")
		if err != nil {
			return err
		}
		if first != again {
			return fmt.Errorf("passwords do not match")
		}
		password = first
	}

	if len(password) < 10 {
		return fmt.Errorf("password must be at least 10 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	uid := userUID
	if uid == "" {
		uid = uuid.NewString()
	}

	out, err := yaml.Marshal([]config.LocalUser{{
		UID:          uid,
		Email:        userEmail,
		PasswordHash: string(hash),
	}})
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}
