package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knoguchi/tourney/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the HTTP API",
	Long: `Sign an HS256 token with JWT_SECRET and print it.

Examples:
  tourney token --subject batch-client
  tourney token --subject ci --expiry 1h`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("subject", "", "token subject (required)")
	tokenCmd.Flags().Duration("expiry", 0, "token lifetime (default JWT_EXPIRY)")
	_ = tokenCmd.MarkFlagRequired("subject")
}

func runToken(cmd *cobra.Command, args []string) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	subject, _ := cmd.Flags().GetString("subject")
	expiry, _ := cmd.Flags().GetDuration("expiry")

	jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtCfg.Expiry = cfg.JWTExpiry
	token, err := auth.NewJWTManager(jwtCfg).GenerateToken(subject, expiry)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
