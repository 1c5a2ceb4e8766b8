package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/whale-spotting-api/internal/models"
	"github.com/noah-isme/whale-spotting-api/internal/service"
	"github.com/noah-isme/whale-spotting-api/pkg/config"
)

func tokenCommand(cfg *config.Config) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the admin endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens := service.NewTokenService(service.TokenConfig{
				Secret:     cfg.JWT.Secret,
				Issuer:     cfg.JWT.Issuer,
				Expiration: cfg.JWT.Expiration,
			})
			token, expiresAt, err := tokens.Issue(subject, models.UserRole(strings.ToUpper(role)), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Operator the token is issued to")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "ADMIN or REVIEWER")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to JWT_EXPIRATION)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
