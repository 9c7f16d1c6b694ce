package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"noisemap/internal/telemetry/domain"
)

const defaultReadingsTable = "noise_readings"

// ReadingRepository is a Postgres store for raw noise readings.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// NewReadingRepository constructs a repository with default table name.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// InsertReadings upserts raw readings in one transaction.
func (r *ReadingRepository) InsertReadings(ctx context.Context, readings []telemetry.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("readings repo: nil db")
	}
	if len(readings) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	sensor_id,
	replicate,
	ts,
	value
) VALUES (
	$1, $2, $3, $4
)
ON CONFLICT (sensor_id, replicate, ts)
DO UPDATE SET
	value = EXCLUDED.value,
	updated_at = NOW()`, r.table)

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
		if _, err := stmt.ExecContext(ctx, reading.SensorID, reading.Replicate, reading.TS.UTC(), reading.Value); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// QueryRange returns raw readings with ts in [start, end), oldest first.
func (r *ReadingRepository) QueryRange(ctx context.Context, start, end time.Time, sensorIDs []string) ([]telemetry.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("readings query: nil db")
	}
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return nil, errors.New("readings query: invalid range")
	}

	args := []any{start.UTC(), end.UTC()}
	filter := ""
	if len(sensorIDs) > 0 {
		placeholders := make([]string, 0, len(sensorIDs))
		for _, id := range sensorIDs {
			args = append(args, id)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		filter = fmt.Sprintf("\n\tAND sensor_id IN (%s)", strings.Join(placeholders, ", "))
	}

	query := fmt.Sprintf(`
SELECT ts, sensor_id, replicate, value
FROM %s
WHERE ts >= $1
	AND ts < $2%s
ORDER BY ts ASC, sensor_id ASC, replicate ASC`, r.table, filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []telemetry.Reading
	for rows.Next() {
		var reading telemetry.Reading
		if err := rows.Scan(&reading.TS, &reading.SensorID, &reading.Replicate, &reading.Value); err != nil {
			return nil, err
		}
		reading.TS = reading.TS.UTC()
		result = append(result, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
