package main

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"

	"noisemap/internal/storage/migrations"
	telemetry "noisemap/internal/telemetry/domain"
	"noisemap/internal/telemetry/infrastructure/memory"
	telemetrypostgres "noisemap/internal/telemetry/infrastructure/postgres"
	telemetrysqlite "noisemap/internal/telemetry/infrastructure/sqlite"
)

// historyStore is the selected reading store and, for SQL backends, its database.
type historyStore struct {
	store   telemetry.Store
	db      *sql.DB
	dialect migrations.Dialect
	backend string
}

func (s historyStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// openDatabase opens the configured SQL database: Postgres first, then SQLite.
// It returns a nil db when neither is configured.
func openDatabase(cfg config) (*sql.DB, migrations.Dialect, error) {
	switch {
	case cfg.DatabaseURL != "":
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("db open error: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, "", fmt.Errorf("db ping error: %w", err)
		}
		return db, migrations.Postgres, nil
	case cfg.SQLitePath != "":
		db, err := telemetrysqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, "", fmt.Errorf("sqlite open error: %w", err)
		}
		return db, migrations.SQLite, nil
	default:
		return nil, "", nil
	}
}

func openHistoryStore(cfg config, logger *log.Logger) (historyStore, error) {
	db, dialect, err := openDatabase(cfg)
	if err != nil {
		return historyStore{}, err
	}
	if db == nil {
		logger.Printf("history: no database configured, keeping readings in memory for %s", cfg.ReadingRetention)
		return historyStore{store: memory.NewReadingRepository(cfg.ReadingRetention), backend: "memory"}, nil
	}

	status, err := migrations.Up(db, dialect, logger)
	if err != nil {
		db.Close()
		return historyStore{}, fmt.Errorf("migrate error: %w", err)
	}
	logger.Printf("history: %s schema at version %d", dialect, status.Version)

	hs := historyStore{db: db, dialect: dialect, backend: string(dialect)}
	if dialect == migrations.Postgres {
		hs.store = telemetrypostgres.NewReadingRepository(db)
	} else {
		hs.store = telemetrysqlite.NewReadingRepository(db)
	}
	return hs, nil
}
