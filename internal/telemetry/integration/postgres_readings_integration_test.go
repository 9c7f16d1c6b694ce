package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"noisemap/internal/storage/migrations"
	telemetry "noisemap/internal/telemetry/domain"
	telemetrypostgres "noisemap/internal/telemetry/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestPostgresReadings_InsertAndQueryDay(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if _, err := migrations.Up(db, migrations.Postgres, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	sensorID := "it-sensor"
	start := time.Now().UTC().AddDate(0, 0, -1).Truncate(time.Hour)
	end := start.Add(24 * time.Hour)

	_, _ = db.ExecContext(ctx, `DELETE FROM noise_readings WHERE sensor_id = $1`, sensorID)

	repo := telemetrypostgres.NewReadingRepository(db)
	readings := make([]telemetry.Reading, 0, 48)
	for hour := 0; hour < 24; hour++ {
		ts := start.Add(time.Duration(hour) * time.Hour)
		readings = append(readings,
			telemetry.Reading{SensorID: sensorID, Replicate: "0", Value: float64(40 + hour), TS: ts},
			telemetry.Reading{SensorID: sensorID, Replicate: "1", Value: float64(42 + hour), TS: ts},
		)
	}

	insertStart := time.Now()
	if err := repo.InsertReadings(ctx, readings); err != nil {
		t.Fatalf("insert readings: %v", err)
	}
	t.Logf("insert 48 readings: %s", time.Since(insertStart))

	got, err := repo.QueryRange(ctx, start, end, []string{sensorID})
	if err != nil {
		t.Fatalf("query range: %v", err)
	}
	if len(got) != len(readings) {
		t.Fatalf("expected %d readings, got %d", len(readings), len(got))
	}
	if !got[0].TS.Equal(start) || got[0].Replicate != "0" {
		t.Fatalf("unexpected first reading: %+v", got[0])
	}
}
