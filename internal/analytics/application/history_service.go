package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"noisemap/internal/analytics/domain/statistic"
	"noisemap/internal/observability/metrics"
	sensors "noisemap/internal/sensors/domain"
	telemetry "noisemap/internal/telemetry/domain"
)

const (
	// DefaultRecentHours is the look-back used by Recent.
	DefaultRecentHours = 5
	// DefaultStatisticsHours is the look-back used by Statistics.
	DefaultStatisticsHours = 24
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// HistoryQuery selects windowed history.
type HistoryQuery struct {
	Start     time.Time
	End       time.Time
	SensorIDs []string
	Window    string
}

// HistoryRow is one (sensor, bucket) row with its placement.
type HistoryRow struct {
	Time        time.Time        `json:"time"`
	SensorID    string           `json:"sensor_id"`
	Value       float64          `json:"value"`
	Replicates  int              `json:"replicates"`
	Samples     int              `json:"samples"`
	Position    sensors.Position `json:"position"`
	DisplayName string           `json:"display_name"`
}

// HistoryService answers historical queries over the reading store.
type HistoryService struct {
	readings telemetry.ReadingQuery
	locator  sensors.Locator
	clock    Clock
}

// NewHistoryService constructs a HistoryService. A nil locator uses default placements.
func NewHistoryService(readings telemetry.ReadingQuery, locator sensors.Locator, clock Clock) (*HistoryService, error) {
	if readings == nil {
		return nil, errors.New("history service: nil reading query")
	}
	if locator == nil {
		locator = sensors.LocatorFunc(sensors.DefaultPlacement)
	}
	if clock == nil {
		clock = sensors.SystemClock{}
	}
	return &HistoryService{readings: readings, locator: locator, clock: clock}, nil
}

// Query returns windowed rows ordered by bucket then sensor.
func (s *HistoryService) Query(ctx context.Context, q HistoryQuery) (rows []HistoryRow, err error) {
	start := time.Now()
	defer func() { metrics.ObserveHistoryQuery("history", resultOf(err), time.Since(start)) }()

	buckets, err := s.buckets(ctx, q)
	if err != nil {
		return nil, err
	}
	placements := make(map[string]sensors.Placement)
	rows = make([]HistoryRow, 0, len(buckets))
	for _, b := range buckets {
		placement, ok := placements[b.SensorID]
		if !ok {
			placement = s.locator.Locate(b.SensorID)
			placements[b.SensorID] = placement
		}
		rows = append(rows, HistoryRow{
			Time:        b.Start,
			SensorID:    b.SensorID,
			Value:       b.Value,
			Replicates:  b.Replicates,
			Samples:     b.Samples,
			Position:    placement.Position,
			DisplayName: placement.DisplayName,
		})
	}
	return rows, nil
}

// Recent returns rows for the last hours hours (DefaultRecentHours when non-positive)
// at the default window.
func (s *HistoryService) Recent(ctx context.Context, hours int) ([]HistoryRow, error) {
	if hours <= 0 {
		hours = DefaultRecentHours
	}
	end := s.clock.Now().UTC()
	return s.Query(ctx, HistoryQuery{Start: end.Add(-time.Duration(hours) * time.Hour), End: end})
}

// Statistics summarizes one sensor over the last hours hours at window.
func (s *HistoryService) Statistics(ctx context.Context, sensorID string, hours int, window string) (summary statistic.Summary, err error) {
	start := time.Now()
	defer func() { metrics.ObserveHistoryQuery("statistics", resultOf(err), time.Since(start)) }()

	if sensorID == "" {
		return statistic.Summary{}, statistic.ErrEmptySensorID
	}
	if hours <= 0 {
		hours = DefaultStatisticsHours
	}
	end := s.clock.Now().UTC()
	q := HistoryQuery{
		Start:     end.Add(-time.Duration(hours) * time.Hour),
		End:       end,
		SensorIDs: []string{sensorID},
		Window:    window,
	}
	buckets, err := s.buckets(ctx, q)
	if err != nil {
		return statistic.Summary{}, err
	}
	summary, err = statistic.Summarize(sensorID, buckets)
	if err != nil {
		return statistic.Summary{}, err
	}
	d, _ := statistic.ParseWindow(window)
	summary.Window = statistic.FormatWindow(d)
	summary.Hours = hours
	return summary, nil
}

func (s *HistoryService) buckets(ctx context.Context, q HistoryQuery) ([]statistic.Bucket, error) {
	window, err := statistic.ParseWindow(q.Window)
	if err != nil {
		return nil, err
	}
	if q.Start.IsZero() || q.End.IsZero() || !q.End.After(q.Start) {
		return nil, statistic.ErrInvalidRange
	}

	readings, err := s.readings.QueryRange(ctx, q.Start, q.End, q.SensorIDs)
	if err != nil {
		return nil, fmt.Errorf("history service: query readings: %w", err)
	}
	observations := make([]statistic.Observation, 0, len(readings))
	for _, r := range readings {
		observations = append(observations, statistic.Observation{
			SensorID:  r.SensorID,
			Replicate: r.Replicate,
			Value:     r.Value,
			At:        r.TS,
		})
	}
	return statistic.AverageByWindow(observations, window)
}

func resultOf(err error) string {
	if err != nil && !errors.Is(err, statistic.ErrNoData) {
		return metrics.ResultError
	}
	return metrics.ResultSuccess
}
