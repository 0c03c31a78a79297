package database

import (
	"fmt"

	"tableside/internal/config"
	"tableside/internal/infrastructure/mysql"
	"tableside/internal/infrastructure/postgres"
	"tableside/internal/infrastructure/sqlite"
)

// Open connects to the configured driver.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		db, err := mysql.NewConnection(cfg)
		if err != nil {
			return nil, err
		}
		return New(db, MySQL), nil
	case config.DriverPostgres:
		db, err := postgres.NewConnection(cfg)
		if err != nil {
			return nil, err
		}
		return New(db, Postgres), nil
	case config.DriverSQLite:
		db, err := sqlite.NewConnection(cfg.Path)
		if err != nil {
			return nil, err
		}
		return New(db, SQLite), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
