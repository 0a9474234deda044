package cmd

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/offszn/marketplace/db"
)

var (
	migrateCmd = &cobra.Command{
		Use:       "migrate [up|down|status|version|redo]",
		Short:     "Apply or inspect the postgres schema migrations",
		Long:      "Runs goose against the migrations compiled into the binary, or against --dir when given.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status", "version", "redo"},
		RunE:      runMigration,
	}
	migrateRollback bool
	migrateDir      string
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "roll back the latest migration (same as `migrate down`)")
	migrateCmd.Flags().StringVarP(&migrateDir, "dir", "d", "", "read migrations from this directory instead of the embedded set")
}

func runMigration(cmd *cobra.Command, args []string) error {
	command := "up"
	if len(args) == 1 {
		command = args[0]
	}
	if migrateRollback {
		command = "down"
	}

	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}

	conn, err := goose.OpenDBWithDriver("pgx", cfg.Database.GetDSN())
	if err != nil {
		return fmt.Errorf("goose: open database: %w", err)
	}
	defer conn.Close()

	goose.SetTableName("schema_migrations")
	dir := migrateDir
	if dir == "" {
		goose.SetBaseFS(db.Migrations)
		dir = db.MigrationsDir
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := goose.RunContext(ctx, command, conn, dir); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}
