package main

import (
	"fmt"

	"github.com/KevinKickass/OpenSimCore/internal/auth"
	"github.com/KevinKickass/OpenSimCore/internal/config"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			token, err := auth.NewJWTHandler(cfg.Auth.GetJWTSecret(), cfg.Auth.TokenTTL).GenerateToken(subject, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "cli", "Token subject")
	cmd.Flags().StringVar(&role, "role", auth.RoleOperator, "Role: viewer, operator or tester")
	return cmd
}
