package telemetry

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidReading is returned when a reading lacks identity or time.
var ErrInvalidReading = errors.New("telemetry: invalid reading")

// Reading is one raw replicate value written to the historical store.
type Reading struct {
	// SensorID is the logical sensor identity.
	SensorID string
	// Replicate distinguishes physical units or sample slots reporting for the
	// same logical sensor. May be empty.
	Replicate string
	Value     float64
	TS        time.Time
}

// Validate checks the reading's required fields.
func (r Reading) Validate() error {
	if r.SensorID == "" || r.TS.IsZero() {
		return ErrInvalidReading
	}
	return nil
}

// ReadingRepository persists raw readings.
type ReadingRepository interface {
	InsertReadings(ctx context.Context, readings []Reading) error
}

// ReadingQuery loads raw readings in [start, end). An empty sensorIDs matches all sensors.
type ReadingQuery interface {
	QueryRange(ctx context.Context, start, end time.Time, sensorIDs []string) ([]Reading, error)
}

// Store is a repository that can also be queried.
type Store interface {
	ReadingRepository
	ReadingQuery
}
