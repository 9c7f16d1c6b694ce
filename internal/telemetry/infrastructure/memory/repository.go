package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"noisemap/internal/telemetry/domain"
)

type readingKey struct {
	sensorID  string
	replicate string
	ts        int64
}

// ReadingRepository is an in-memory historical store for single-process
// deployments without a database, and for tests.
type ReadingRepository struct {
	mu        sync.RWMutex
	data      map[readingKey]telemetry.Reading
	retention time.Duration
	now       func() time.Time

	sweepEvery time.Duration
	lastSweep  time.Time
}

const defaultSweepInterval = time.Minute

// NewReadingRepository constructs a repository. A positive retention hides
// readings older than now-retention and sweeps them out at most once a minute.
func NewReadingRepository(retention time.Duration) *ReadingRepository {
	return &ReadingRepository{
		data:       make(map[readingKey]telemetry.Reading),
		retention:  retention,
		now:        time.Now,
		sweepEvery: defaultSweepInterval,
	}
}

func (r *ReadingRepository) cutoff() (time.Time, bool) {
	if r.retention <= 0 {
		return time.Time{}, false
	}
	return r.now().Add(-r.retention), true
}

// InsertReadings upserts readings.
func (r *ReadingRepository) InsertReadings(ctx context.Context, readings []telemetry.Reading) error {
	_ = ctx
	for _, reading := range readings {
		if err := reading.Validate(); err != nil {
			return err
		}
	}

	cutoff, expires := r.cutoff()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reading := range readings {
		reading.TS = reading.TS.UTC()
		if expires && reading.TS.Before(cutoff) {
			continue
		}
		r.data[readingKey{reading.SensorID, reading.Replicate, reading.TS.UnixNano()}] = reading
	}
	if expires && cutoff.Sub(r.lastSweep) >= r.sweepEvery {
		r.sweep(cutoff)
	}
	return nil
}

// sweep drops expired readings. Callers hold the write lock.
func (r *ReadingRepository) sweep(cutoff time.Time) {
	for key, reading := range r.data {
		if reading.TS.Before(cutoff) {
			delete(r.data, key)
		}
	}
	r.lastSweep = cutoff
}

// QueryRange returns readings in [start, end) ordered by time, sensor, replicate.
func (r *ReadingRepository) QueryRange(ctx context.Context, start, end time.Time, sensorIDs []string) ([]telemetry.Reading, error) {
	_ = ctx
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return nil, errors.New("memory readings query: invalid range")
	}
	var filter map[string]struct{}
	if len(sensorIDs) > 0 {
		filter = make(map[string]struct{}, len(sensorIDs))
		for _, id := range sensorIDs {
			filter[id] = struct{}{}
		}
	}

	if cutoff, ok := r.cutoff(); ok && start.Before(cutoff) {
		start = cutoff
	}

	r.mu.RLock()
	result := make([]telemetry.Reading, 0)
	for _, reading := range r.data {
		if reading.TS.Before(start) || !reading.TS.Before(end) {
			continue
		}
		if filter != nil {
			if _, ok := filter[reading.SensorID]; !ok {
				continue
			}
		}
		result = append(result, reading)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.TS.Equal(b.TS) {
			return a.TS.Before(b.TS)
		}
		if a.SensorID != b.SensorID {
			return a.SensorID < b.SensorID
		}
		return a.Replicate < b.Replicate
	})
	return result, nil
}

// Len returns the number of stored readings.
func (r *ReadingRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
