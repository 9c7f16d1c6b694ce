package main

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spatial "noisemap/internal/spatial/domain"
	"noisemap/internal/storage/migrations"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "PG_DSN", "SQLITE_PATH", "PLANE_BOUNDS", "GRID_SIZE", "IDW_POWER", "RECOMPUTE_INTERVAL"} {
		t.Setenv(key, "")
	}
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.RecomputeInterval)
	assert.Equal(t, 50, cfg.GridSize)
	assert.Equal(t, 2, cfg.IDWPower)
	assert.Equal(t, 0.10, cfg.MarginPercent)
	assert.Nil(t, cfg.PlaneBounds)

	settings := cfg.pipelineSettings()
	assert.Equal(t, cfg.RecomputeInterval, settings.RecomputeInterval)
	assert.Equal(t, cfg.GridSize, settings.GridSize)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/noise")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RECOMPUTE_INTERVAL", "2s")
	t.Setenv("GRID_SIZE", "80")
	t.Setenv("IDW_POWER", "3")
	t.Setenv("MARGIN_PERCENT", "0.2")
	t.Setenv("PLANE_BOUNDS", "0, 10, -5, 5")
	t.Setenv("FIELD_CACHE_SIZE", "not-a-number")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/noise", cfg.DatabaseURL)
	assert.Equal(t, 2*time.Second, cfg.RecomputeInterval)
	assert.Equal(t, 80, cfg.GridSize)
	assert.Equal(t, 3, cfg.IDWPower)
	assert.Equal(t, 0.2, cfg.MarginPercent)
	assert.Equal(t, 16, cfg.FieldCacheSize)
	require.NotNil(t, cfg.PlaneBounds)
	assert.Equal(t, spatial.Bounds{XMin: 0, XMax: 10, YMin: -5, YMax: 5}, *cfg.PlaneBounds)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("PLANE_BOUNDS", "10,0,0,1")
	_, err := loadConfig()
	assert.Error(t, err)

	t.Setenv("PLANE_BOUNDS", "")
	t.Setenv("GRID_SIZE", "1")
	_, err = loadConfig()
	assert.Error(t, err)

	t.Setenv("GRID_SIZE", "")
	t.Setenv("IDW_POWER", "0")
	_, err = loadConfig()
	assert.Error(t, err)
}

func TestParseBounds(t *testing.T) {
	_, err := parseBounds("1,2,3")
	assert.Error(t, err)
	_, err = parseBounds("a,2,3,4")
	assert.Error(t, err)
}

func TestOpenDatabaseSelectsSQLite(t *testing.T) {
	db, dialect, err := openDatabase(config{SQLitePath: t.TempDir() + "/noise.db"})
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, migrations.SQLite, dialect)

	db2, _, err := openDatabase(config{})
	require.NoError(t, err)
	assert.Nil(t, db2)
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestStatusWriterPassesThroughFlushAndHijack(t *testing.T) {
	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	var sw http.ResponseWriter = &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	flusher, ok := sw.(http.Flusher)
	require.True(t, ok)
	flusher.Flush()
	assert.True(t, rec.Flushed)

	_, _, err := sw.(http.Hijacker).Hijack()
	require.NoError(t, err)
	assert.True(t, rec.hijacked)
}
