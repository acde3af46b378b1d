/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/codearena/judge/internal/handlers"
	"github.com/spf13/cobra"
)

var (
	tokenUserID int
	tokenRole   string
	tokenTTL    time.Duration
)

// tokenCmd signs an API token with JWT_SECRET for local use.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for a user id",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET is required")
		}

		token, err := handlers.IssueToken(tokenUserID, tokenRole, []byte(cfg.JWTSecret), tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().IntVar(&tokenUserID, "user", 0, "user id placed in the subject claim")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "", `role claim ("admin" may upload test cases)`)
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", handlers.DefaultTokenTTL, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}
