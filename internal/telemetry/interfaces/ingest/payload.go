package ingest

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"noisemap/internal/sensors/infrastructure/yamlconfig"
)

// Message is the gateway payload.
type Message struct {
	MessageID string        `json:"message_id"`
	Timestamp int64         `json:"timestamp"`
	Sensors   []SensorEntry `json:"sensors"`
}

// SensorEntry is one replicate reading inside a gateway message.
type SensorEntry struct {
	MicroID  string          `json:"micro_id"`
	SensorID string          `json:"sensor_id"`
	Value    *float64        `json:"value"`
	Sample   json.RawMessage `json:"sample"`
}

// ID returns the logical sensor identity of the entry.
func (e SensorEntry) ID() string {
	id := e.MicroID
	if id == "" {
		id = e.SensorID
	}
	return yamlconfig.SensorID(strings.TrimSpace(id))
}

// Replicate returns the sample tag as text, or "" when absent.
func (e SensorEntry) Replicate() string {
	raw := bytes.TrimSpace(e.Sample)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (e SensorEntry) valid() bool {
	return e.ID() != "" && e.Value != nil && !math.IsNaN(*e.Value) && !math.IsInf(*e.Value, 0) && e.Replicate() != ""
}

// Average is the replicate mean of one logical sensor in a message.
type Average struct {
	SensorID string
	Value    float64
	Count    int
}

// AverageReplicates groups valid entries by logical sensor and averages them,
// in order of first appearance. Entries without an identity, a numeric value or a
// sample tag are dropped and counted.
func AverageReplicates(entries []SensorEntry) (averages []Average, dropped int) {
	index := make(map[string]int)
	for _, entry := range entries {
		if !entry.valid() {
			dropped++
			continue
		}
		id := entry.ID()
		i, ok := index[id]
		if !ok {
			i = len(averages)
			index[id] = i
			averages = append(averages, Average{SensorID: id})
		}
		averages[i].Value += *entry.Value
		averages[i].Count++
	}
	for i := range averages {
		averages[i].Value /= float64(averages[i].Count)
	}
	return averages, dropped
}
