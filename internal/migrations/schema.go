package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"
)

// sqlFS contains the embedded SQL migration files.
//
//go:embed sql/*.sql
var sqlFS embed.FS

// Status describes the schema version recorded by golang-migrate.
type Status struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Fresh   bool `json:"fresh"`
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrations: create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(sqlFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrations: init migrate instance: %w", err)
	}
	return m, nil
}

// Up applies all pending database migrations. It is safe to call multiple
// times; when the database schema is up to date, the function is a no-op.
func Up(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	currentVersion := uint(0)
	if v, _, verr := m.Version(); verr == nil {
		currentVersion = v
		log.Info().Uint("version", v).Msg("migrations: current database schema version")
	} else if errors.Is(verr, migrate.ErrNilVersion) {
		log.Info().Msg("migrations: no existing migration version (fresh database)")
	} else {
		log.Warn().Err(verr).Msg("migrations: unable to determine current version")
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Uint("version", currentVersion).Msg("migrations: database is up to date")
			return nil
		}
		return fmt.Errorf("migrations: apply: %w", err)
	}

	if v, _, err := m.Version(); err == nil {
		log.Info().Uint("version", v).Msg("migrations: applied; new schema version")
	}
	return nil
}

// CurrentStatus reports the recorded schema version without changing it.
func CurrentStatus(db *sql.DB) (Status, error) {
	m, err := newMigrate(db)
	if err != nil {
		return Status{}, err
	}

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{Fresh: true}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("migrations: read version: %w", err)
	}
	return Status{Version: v, Dirty: dirty}, nil
}

// FixDirtyDatabase rolls the recorded version back one step when the last
// migration failed halfway, so the next Up reruns it.
func FixDirtyDatabase(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	v, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("migrations: read version: %w", err)
	}
	if !dirty {
		log.Info().Uint("version", v).Msg("migrations: database is not dirty")
		return nil
	}

	target := int(v) - 1
	if target < 1 {
		target = -1
	}
	log.Warn().Uint("dirty_version", v).Int("target", target).Msg("migrations: forcing version to recover dirty database")
	if err := m.Force(target); err != nil {
		return fmt.Errorf("migrations: force %d: %w", target, err)
	}
	return nil
}

// ForceVersion sets the recorded version without running any migration.
func ForceVersion(db *sql.DB, version uint) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Force(int(version)); err != nil {
		return fmt.Errorf("migrations: force %d: %w", version, err)
	}
	return nil
}
