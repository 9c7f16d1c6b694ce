package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"noisemap/internal/telemetry/domain"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

const defaultReadingsTable = "noise_readings"

// Open opens a single-connection SQLite database at path.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite: empty path")
	}
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ReadingRepository stores raw readings in SQLite with millisecond timestamps.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// NewReadingRepository constructs a repository.
func NewReadingRepository(db *sql.DB) *ReadingRepository {
	return &ReadingRepository{db: db, table: defaultReadingsTable}
}

// InsertReadings upserts raw readings in one transaction.
func (r *ReadingRepository) InsertReadings(ctx context.Context, readings []telemetry.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("sqlite readings repo: nil db")
	}
	if len(readings) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (sensor_id, replicate, ts_ms, value)
VALUES (?, ?, ?, ?)
ON CONFLICT (sensor_id, replicate, ts_ms)
DO UPDATE SET value = excluded.value, updated_at = CAST(strftime('%%s', 'now') AS INTEGER)`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, reading := range readings {
		if err := reading.Validate(); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, reading.SensorID, reading.Replicate, reading.TS.UnixMilli(), reading.Value); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// QueryRange returns raw readings with ts in [start, end), oldest first.
func (r *ReadingRepository) QueryRange(ctx context.Context, start, end time.Time, sensorIDs []string) ([]telemetry.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("sqlite readings query: nil db")
	}
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return nil, errors.New("sqlite readings query: invalid range")
	}

	args := []any{start.UnixMilli(), end.UnixMilli()}
	filter := ""
	if len(sensorIDs) > 0 {
		filter = " AND sensor_id IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(sensorIDs)), ", ") + ")"
		for _, id := range sensorIDs {
			args = append(args, id)
		}
	}

	query := fmt.Sprintf(`
SELECT ts_ms, sensor_id, replicate, value
FROM %s
WHERE ts_ms >= ? AND ts_ms < ?%s
ORDER BY ts_ms ASC, sensor_id ASC, replicate ASC`, r.table, filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []telemetry.Reading
	for rows.Next() {
		var (
			tsMillis int64
			reading  telemetry.Reading
		)
		if err := rows.Scan(&tsMillis, &reading.SensorID, &reading.Replicate, &reading.Value); err != nil {
			return nil, err
		}
		reading.TS = time.UnixMilli(tsMillis).UTC()
		result = append(result, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
