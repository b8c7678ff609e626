package commands

import (
	"database/sql"

	"github.com/apiprobe/apiprobe/config"
	"github.com/apiprobe/apiprobe/db"
	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/logger"
)

// openDatabase opens and migrates a database using the specified path.
// If dbPath is empty, it resolves through the config cascade. Uses
// logger.Logger for db operations.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		dbPath = config.Current().GetDatabasePath()
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	return database, nil
}
