package commands

import (
	"github.com/spf13/cobra"

	"github.com/tessellate/canvasd/config"
	"github.com/tessellate/canvasd/db"
	"github.com/tessellate/canvasd/errors"
	"github.com/tessellate/canvasd/logger"
)

// MigrateCmd applies pending schema migrations and exits.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

var migrateDBPath string

func init() {
	MigrateCmd.Flags().StringVar(&migrateDBPath, "db", "", "SQLite database path (overrides config)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	if migrateDBPath != "" {
		cfg.DB.Path = migrateDBPath
	}

	if err := logger.Initialize(cfg.Log.JSON); err != nil {
		return errors.Wrap(err, "initialize logger")
	}
	log := logger.Logger

	database, err := db.Open(cfg.DB.Path, log)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer database.Close()

	if err := db.Migrate(database, log); err != nil {
		return errors.Wrap(err, "apply migrations")
	}

	log.Infow("Migrations applied", "db", cfg.DB.Path)
	return nil
}
