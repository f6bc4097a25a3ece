package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/developer-mesh/academic-helper/internal/auth"
)

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an identity token for the search endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := globalConfig.Auth
		if err := cfg.Validate(); err != nil {
			return err
		}
		if tokenSubject == "" {
			return fmt.Errorf("--subject is required")
		}

		token, err := auth.NewJWTAuthenticator([]byte(cfg.JWTSecret), cfg.Issuer, cfg.TokenTTL).GenerateToken(tokenSubject)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenSubject, "subject", "s", "", "token subject, usually a user id")
}
