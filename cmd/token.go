package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offszn/marketplace/internal/auth"
	authPostgres "github.com/offszn/marketplace/internal/auth/postgres"
)

var tokenCmd = &cobra.Command{
	Use:   "token [user-id-or-email]",
	Short: "Issue an access token for an existing user",
	Long:  `Sign a development access token for a seeded user, looked up by id or email.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, err := loadConfig(configDir)
		if err != nil {
			return err
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		svc := auth.NewService(
			authPostgres.NewRepository(db),
			auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration),
		)

		token, user, err := svc.IssueToken(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to issue token for %s: %w", args[0], err)
		}

		fmt.Printf("user:  %s <%s> role=%s\n", user.ID, user.Email, user.Role)
		fmt.Printf("token: %s\n", token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
