package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Dialect selects a migration set.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Status reports the schema version after a run.
type Status struct {
	Version uint
	Dirty   bool
	Applied bool
}

type migrateLogger struct {
	logger *log.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Printf("migrate: "+format, v...)
}

func (l migrateLogger) Verbose() bool { return false }

// Up applies all pending migrations for dialect on db.
func Up(db *sql.DB, dialect Dialect, logger *log.Logger) (Status, error) {
	if db == nil {
		return Status{}, errors.New("migrations: nil db")
	}
	if logger == nil {
		logger = log.Default()
	}

	src, err := iofs.New(files, string(dialect))
	if err != nil {
		return Status{}, fmt.Errorf("migrations: source %s: %w", dialect, err)
	}

	var m *migrate.Migrate
	switch dialect {
	case Postgres:
		driver, derr := migratepgx.WithInstance(db, &migratepgx.Config{})
		if derr != nil {
			return Status{}, fmt.Errorf("migrations: postgres driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "pgx5", driver)
	case SQLite:
		driver, derr := migratesqlite.WithInstance(db, &migratesqlite.Config{})
		if derr != nil {
			return Status{}, fmt.Errorf("migrations: sqlite driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", driver)
	default:
		return Status{}, fmt.Errorf("migrations: unknown dialect %q", dialect)
	}
	if err != nil {
		return Status{}, fmt.Errorf("migrations: init: %w", err)
	}
	m.Log = migrateLogger{logger: logger}
	// m.Close would close db, which the caller owns.

	status := Status{}
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return status, fmt.Errorf("migrations: up: %w", err)
		}
	} else {
		status.Applied = true
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return status, fmt.Errorf("migrations: version: %w", err)
	}
	status.Version, status.Dirty = version, dirty
	return status, nil
}
