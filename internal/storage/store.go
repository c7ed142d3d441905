// Package storage implements tag and prefix persistence on relational
// databases. PostgreSQL backs production deployments and SQLite backs
// development and tests; both share one schema and query set.
package storage

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	maxOpenConnections  = 10
	maxIdleConnections  = 1
	migrationsDirectory = "migrations"
)

// Store implements jolteon.TagStore and jolteon.PrefixStore on sqlx.
type Store struct {
	db     *sqlx.DB
	driver string
	logger *slog.Logger
}

// Open connects to the database, applies pending migrations, and bounds the
// connection pool.
func Open(driver, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConnections)
	db.SetMaxIdleConns(maxIdleConnections)

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("set migration dialect %s: %w", driver, err), closeErr)
	}
	if err := goose.Up(db.DB, migrationsDirectory); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("apply migrations: %w", err), closeErr)
	}

	logger.Info("storage ready", "driver", driver, "max_open_conns", maxOpenConnections)

	return &Store{db: db, driver: driver, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}

	return nil
}

// storageFailure tags a database error so callers can match the
// storage-unavailable sentinel while keeping the driver error visible.
func storageFailure(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, errors.Join(jolteon.ErrStorageUnavailable, err))
}

var (
	_ jolteon.TagStore    = (*Store)(nil)
	_ jolteon.PrefixStore = (*Store)(nil)
)
