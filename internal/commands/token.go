package commands

import (
	"fmt"
	"time"

	"emperror.dev/errors"
	"github.com/spf13/cobra"

	"metricwatch/internal/middleware"
	"metricwatch/internal/services"
)

var tokenUser string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issues an API token signed with the configured secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !middleware.ValidUsername(tokenUser) {
			return errors.Errorf("invalid username %q", tokenUser)
		}

		auth, err := services.NewAuthService(authConfig(), logger)
		if err != nil {
			return err
		}
		token, expiresAt, err := auth.GenerateToken(tokenUser)
		if err != nil {
			return err
		}

		fmt.Println(token)
		logger.Info().Str("user", tokenUser).Str("expires_at", expiresAt.Format(time.RFC3339)).Msg("Token issued")
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "admin", "Username embedded in the token.")
}

func authConfig() services.AuthConfig {
	return services.AuthConfig{
		Secret:      cfg.Auth.Secret,
		SecretFile:  cfg.Auth.SecretFile,
		TokenExpiry: cfg.Auth.TokenExpiry,
		Username:    cfg.Auth.Username,
		Password:    cfg.Auth.Password,
	}
}
