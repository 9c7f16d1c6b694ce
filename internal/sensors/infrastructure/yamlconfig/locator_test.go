package yamlconfig

import (
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sensors "noisemap/internal/sensors/domain"
)

const layoutDoc = `
microcontrollers:
  micro_E1:
    location: [1.0, 2.0]
    room: "Lab A"
  E2:
    location: [40.41, -3.70]
    coordinates_type: gps
sensores:
  micro_E3:
    ubicacion_base: [4.5, 12.0]
    nombre_zona: "Pasillo"
`

func writeLayout(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensors.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	return path
}

func TestParseResolvesLayouts(t *testing.T) {
	entries, err := Parse([]byte(layoutDoc))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	e1 := entries["micro_E1"]
	assert.Equal(t, "E1", e1.SensorID)
	assert.Equal(t, sensors.Position{X: 1, Y: 2}, e1.Position)
	assert.Equal(t, "Lab A", e1.DisplayName)

	e2 := entries["micro_E2"]
	assert.Equal(t, sensors.Position{X: -3.70, Y: 40.41}, e2.Position)
	assert.Equal(t, "E2", e2.DisplayName)

	e3 := entries["micro_E3"]
	assert.Equal(t, "Pasillo", e3.DisplayName)
	assert.Equal(t, sensors.Position{X: 4.5, Y: 12}, e3.Position)
}

func TestParseRejectsBadLocation(t *testing.T) {
	_, err := Parse([]byte("sensors:\n  E1:\n    location: [1.0]\n"))
	if !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("expected ErrInvalidLayout, got %v", err)
	}
	_, err = Parse([]byte("sensors:\n  E1:\n    location: [1.0, 2.0]\n    coordinates_type: polar\n"))
	if !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("expected ErrInvalidLayout, got %v", err)
	}
}

func TestLocatorMissFallsBackAndWarns(t *testing.T) {
	var buf bytes.Buffer
	locator, err := NewLocator(writeLayout(t, layoutDoc), WithLogger(log.New(&buf, "", 0)))
	require.NoError(t, err)

	known := locator.Locate("E1")
	assert.True(t, known.Known)
	assert.Equal(t, "Lab A", known.DisplayName)

	miss := locator.Locate("E9")
	assert.False(t, miss.Known)
	assert.Equal(t, sensors.DefaultPosition, miss.Position)
	assert.Equal(t, "unknown - E9", miss.DisplayName)
	assert.True(t, strings.Contains(buf.String(), "E9"))
}

func TestLocatorMissingFileStillResolves(t *testing.T) {
	locator, err := NewLocator(filepath.Join(t.TempDir(), "absent.yaml"), WithLogger(log.New(&bytes.Buffer{}, "", 0)))
	require.Error(t, err)
	require.NotNil(t, locator)

	assert.Equal(t, sensors.DefaultPosition, locator.Locate("E1").Position)
}

func TestLocatorReloadsAfterTTL(t *testing.T) {
	path := writeLayout(t, "sensors:\n  E1:\n    location: [1, 1]\n")
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	locator, err := NewLocator(path, WithCacheTTL(time.Minute), WithNow(func() time.Time { return now }))
	require.NoError(t, err)
	require.Len(t, locator.Sensors(), 1)

	require.NoError(t, os.WriteFile(path, []byte("sensors:\n  E1:\n    location: [1, 1]\n  E2:\n    location: [2, 2]\n"), 0o600))
	assert.Len(t, locator.Sensors(), 1, "cached layout reused within ttl")

	now = now.Add(2 * time.Minute)
	assert.Len(t, locator.Sensors(), 2)
}

func TestLocatorReloadKeepsEntriesOnParseError(t *testing.T) {
	path := writeLayout(t, layoutDoc)
	locator, err := NewLocator(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("sensors: [broken"), 0o600))
	count, err := locator.Reload()
	require.Error(t, err)
	assert.Equal(t, 3, count)
	assert.True(t, locator.Locate("E3").Known)
}
