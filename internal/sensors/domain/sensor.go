package sensors

import "time"

// HistoryCapacity is the number of samples retained per sensor.
const HistoryCapacity = 60

// Position is a point on the monitored plane.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sample is a single accepted reading. It is never modified once recorded.
type Sample struct {
	SensorID string  `json:"sensor_id"`
	Value    float64 `json:"value"`
	// Timestamp is the sender's clock (ms or s). Informational only.
	Timestamp  *int64    `json:"timestamp,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Seq        uint64    `json:"seq"`
}

// Record is the per-sensor state.
type Record struct {
	SensorID    string    `json:"sensor_id"`
	Position    Position  `json:"position"`
	DisplayName string    `json:"display_name"`
	LastValue   float64   `json:"last_value"`
	LastUpdate  time.Time `json:"last_update"`
	History     []Sample  `json:"history"`
}

// Point is the (identity, position, value) tuple fed to the spatial engine.
type Point struct {
	SensorID string
	X        float64
	Y        float64
	Value    float64
}

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now in UTC.
type SystemClock struct{}

// Now returns current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
