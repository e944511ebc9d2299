// Package dbmigrate applies pending schema migrations non-interactively.
// Postgres is the production target; sqlite is supported for small deploys
// and for exercising the step without a database server.
package dbmigrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver for database/sql
	_ "modernc.org/sqlite"             // sqlite driver for database/sql

	"github.com/jhenriquezf/cw/internal/config"
)

// Apply runs all pending migrations from cfg.MigrationsDir against
// cfg.URL. It returns a short human-readable summary of what happened.
// golang-migrate takes an advisory lock on postgres, so concurrent container
// starts cannot race the schema.
func Apply(ctx context.Context, cfg config.Database) (string, error) {
	db, driverName, err := open(cfg)
	if err != nil {
		return "", err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return "", fmt.Errorf("ping database: %w", err)
	}

	driver, err := newDriver(db, driverName, cfg.MigrationsTable)
	if err != nil {
		return "", fmt.Errorf("migration driver: %w", err)
	}
	src, err := iofs.New(os.DirFS(cfg.MigrationsDir), ".")
	if err != nil {
		return "", fmt.Errorf("migration source %s: %w", cfg.MigrationsDir, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, driverName, driver)
	if err != nil {
		return "", fmt.Errorf("migrate instance: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return "", fmt.Errorf("apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return "", fmt.Errorf("migration version: %w", err)
	}
	if errors.Is(err, migrate.ErrNilVersion) {
		return "no migrations present", nil
	}
	if dirty {
		log.Warn().Uint("version", version).Msg("schema is dirty, manual intervention may be required")
	}
	if errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Sprintf("up to date at version %d", version), nil
	}
	return fmt.Sprintf("migrated to version %d", version), nil
}

func open(cfg config.Database) (*sql.DB, string, error) {
	switch {
	case strings.HasPrefix(cfg.URL, "postgres://"), strings.HasPrefix(cfg.URL, "postgresql://"):
		db, err := sql.Open("pgx", cfg.URL)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres: %w", err)
		}
		return db, "postgres", nil
	case strings.HasPrefix(cfg.URL, "sqlite://"):
		path := strings.TrimPrefix(cfg.URL, "sqlite://")
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite: %w", err)
		}
		return db, "sqlite", nil
	default:
		return nil, "", fmt.Errorf("unsupported database url scheme in %q", redact(cfg.URL))
	}
}

func newDriver(db *sql.DB, name, table string) (database.Driver, error) {
	switch name {
	case "postgres":
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
	case "sqlite":
		return sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: table})
	default:
		return nil, fmt.Errorf("unknown driver %s", name)
	}
}

// redact strips credentials from a connection string before it reaches logs
// or error output.
func redact(url string) string {
	at := strings.LastIndexByte(url, '@')
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return url
	}
	return url[:scheme+3] + "***" + url[at:]
}
