package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/teliris/jobscout/config"
	"github.com/teliris/jobscout/db"
	"github.com/teliris/jobscout/errors"
	"github.com/teliris/jobscout/logger"
)

// loadConfig honors the --config flag, falling back to the default
// search path.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// openDatabase opens and migrates the configured database.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	database, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", cfg.Database.Path)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", cfg.Database.Path)
	}

	return database, nil
}
