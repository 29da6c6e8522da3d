// Package sqlite provides a local like store backed by an embedded SQLite database.
package sqlite

import (
	"database/sql"
	"embed"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Config represents SQLite store configuration.
type Config struct {
	Path string `mapstructure:"path" default:"playcore.db" validate:"required"`
}

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create database dir %s", dir)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	zlog.Debug().Msgf("sqlite: opened %s", path)
	return db, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to create migration driver")
	}

	source, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "failed to load migrations")
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return errors.Wrap(err, "failed to init migrations")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "failed to run migrations")
	}
	return nil
}
