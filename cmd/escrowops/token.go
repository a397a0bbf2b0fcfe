package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "escrowops/internal/jwt_token"
	"escrowops/pkg/domain"
)

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

// tokenCmd mints a bearer token with the configured signing key, for
// operators and local testing without the identity provider.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		role, err := domain.ParseRole(tokenRole)
		if err != nil {
			return err
		}
		if cfg.IsProduction() && role == domain.RoleOwner {
			return fmt.Errorf("owner tokens are issued by the identity provider in production")
		}
		jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
		token, err := jwt.GenerateAccessToken(domain.Actor{ID: tokenSubject, Role: role}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "sub", "", "actor id")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(domain.RoleModerator), "owner, moderator or system")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("sub")
}
