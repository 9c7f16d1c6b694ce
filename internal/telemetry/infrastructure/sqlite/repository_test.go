package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"noisemap/internal/storage/migrations"
	"noisemap/internal/telemetry/domain"
)

func openMigrated(t *testing.T) *ReadingRepository {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "noise.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	status, err := migrations.Up(db, migrations.SQLite, nil)
	require.NoError(t, err)
	require.True(t, status.Applied)
	require.False(t, status.Dirty)

	again, err := migrations.Up(db, migrations.SQLite, nil)
	require.NoError(t, err)
	require.False(t, again.Applied)
	require.Equal(t, status.Version, again.Version)

	return NewReadingRepository(db)
}

func TestReadingRoundTripAndFilter(t *testing.T) {
	repo := openMigrated(t)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.InsertReadings(ctx, []telemetry.Reading{
		{SensorID: "E1", Replicate: "0", Value: 50, TS: t0},
		{SensorID: "E1", Replicate: "1", Value: 54, TS: t0},
		{SensorID: "E2", Replicate: "0", Value: 70, TS: t0.Add(30 * time.Second)},
		{SensorID: "E1", Replicate: "0", Value: 99, TS: t0.Add(2 * time.Hour)},
	}))
	// Upsert on the same key replaces the value.
	require.NoError(t, repo.InsertReadings(ctx, []telemetry.Reading{{SensorID: "E1", Replicate: "1", Value: 52, TS: t0}}))

	got, err := repo.QueryRange(ctx, t0, t0.Add(time.Hour), nil)
	require.NoError(t, err)
	want := []telemetry.Reading{
		{SensorID: "E1", Replicate: "0", Value: 50, TS: t0},
		{SensorID: "E1", Replicate: "1", Value: 52, TS: t0},
		{SensorID: "E2", Replicate: "0", Value: 70, TS: t0.Add(30 * time.Second)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("range mismatch (-want +got):\n%s", diff)
	}

	filtered, err := repo.QueryRange(ctx, t0, t0.Add(3*time.Hour), []string{"E2"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, "E2", filtered[0].SensorID)
}

func TestInsertRejectsInvalidReading(t *testing.T) {
	repo := openMigrated(t)
	err := repo.InsertReadings(context.Background(), []telemetry.Reading{{SensorID: "E1"}})
	require.ErrorIs(t, err, telemetry.ErrInvalidReading)
}
