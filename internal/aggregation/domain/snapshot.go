package aggregation

import (
	"time"

	sensors "noisemap/internal/sensors/domain"
	spatial "noisemap/internal/spatial/domain"
)

// SensorView is the published state of one sensor.
type SensorView struct {
	SensorID    string           `json:"sensor_id"`
	Position    sensors.Position `json:"position"`
	DisplayName string           `json:"display_name"`
	Value       float64          `json:"value"`
	LastUpdate  time.Time        `json:"last_update"`
}

// Snapshot is the externally visible state. It is never modified after publication.
type Snapshot struct {
	ID            string             `json:"id"`
	Sensors       []SensorView       `json:"sensors"`
	Interpolation *spatial.Field     `json:"interpolation,omitempty"`
	Epicenter     *spatial.Epicenter `json:"epicenter,omitempty"`
	SensorCount   int                `json:"sensor_count"`
	ComputedAt    time.Time          `json:"computed_at"`
}

// Empty returns the snapshot published before any sample arrives.
func Empty(at time.Time) *Snapshot {
	return &Snapshot{Sensors: []SensorView{}, ComputedAt: at}
}

// ViewsFromRecords converts store records into sensor views.
func ViewsFromRecords(records []sensors.Record) []SensorView {
	views := make([]SensorView, 0, len(records))
	for _, r := range records {
		views = append(views, SensorView{
			SensorID:    r.SensorID,
			Position:    r.Position,
			DisplayName: r.DisplayName,
			Value:       r.LastValue,
			LastUpdate:  r.LastUpdate,
		})
	}
	return views
}

// Positions returns sensor positions as spatial points.
func (s *Snapshot) Positions() []spatial.Point {
	if s == nil {
		return nil
	}
	out := make([]spatial.Point, 0, len(s.Sensors))
	for _, v := range s.Sensors {
		out = append(out, spatial.Point{X: v.Position.X, Y: v.Position.Y})
	}
	return out
}
