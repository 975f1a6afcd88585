// Package migrations applies the embedded Postgres schema with golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var files embed.FS

// Migrator runs schema migrations against a single database.
type Migrator struct {
	m      *migrate.Migrate
	source source.Driver
	logger *slog.Logger
}

// New opens a migrator for databaseURL (postgres://...).
func New(databaseURL string, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	src, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	return &Migrator{m: m, source: src, logger: logger}, nil
}

// Up applies every pending migration. A dirty database is forced back to the
// version before the failed migration, so that migration runs again.
func (m *Migrator) Up() error {
	version, dirty, err := m.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}

	if dirty {
		prev, err := m.previous(version)
		if err != nil {
			return err
		}
		m.logger.Warn("schema is dirty, retrying failed migration", "failed", version, "forced_to", prev)
		if err := m.m.Force(prev); err != nil {
			return fmt.Errorf("force version %d: %w", prev, err)
		}
	}

	if err := m.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("schema up to date", "version", version)
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	newVersion, _, _ := m.m.Version()
	m.logger.Info("schema migrated", "from", version, "to", newVersion)
	return nil
}

// previous returns the version that precedes version in the embedded source,
// or migrate.NilVersion when version is the first migration.
func (m *Migrator) previous(version uint) (int, error) {
	prev, err := m.source.Prev(version)
	if errors.Is(err, fs.ErrNotExist) {
		return migrate.NilVersion, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find version before %d: %w", version, err)
	}
	return int(prev), nil
}

// Down rolls back a single migration.
func (m *Migrator) Down() error {
	if err := m.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back migration: %w", err)
	}
	return nil
}

func (m *Migrator) Version() (uint, bool, error) {
	return m.m.Version()
}

func (m *Migrator) Close() error {
	sourceErr, dbErr := m.m.Close()
	return errors.Join(sourceErr, dbErr)
}
