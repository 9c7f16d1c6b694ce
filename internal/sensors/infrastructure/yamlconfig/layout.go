package yamlconfig

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	sensors "noisemap/internal/sensors/domain"
)

// KeyPrefix is prepended to logical sensor ids in layout files.
const KeyPrefix = "micro_"

const (
	coordinatesRelative = "relative"
	coordinatesGPS      = "gps"
)

// ErrInvalidLayout is returned when a layout file cannot be interpreted.
var ErrInvalidLayout = errors.New("sensor layout: invalid layout")

// Layout is the on-disk sensor layout.
type Layout struct {
	Microcontrollers map[string]Entry `yaml:"microcontrollers"`
	Sensors          map[string]Entry `yaml:"sensors"`
	// Legacy spelling used by older deployments.
	Sensores map[string]legacyEntry `yaml:"sensores"`
}

// Entry is a single sensor definition.
type Entry struct {
	Location        []float64 `yaml:"location"`
	Room            string    `yaml:"room"`
	Zone            string    `yaml:"zone"`
	CoordinatesType string    `yaml:"coordinates_type"`
}

type legacyEntry struct {
	Location        []float64 `yaml:"ubicacion_base"`
	Zone            string    `yaml:"nombre_zona"`
	CoordinatesType string    `yaml:"coordinates_type"`
}

// ConfiguredSensor is a resolved layout entry.
type ConfiguredSensor struct {
	SensorID        string           `json:"sensor_id"`
	Key             string           `json:"key"`
	Position        sensors.Position `json:"position"`
	DisplayName     string           `json:"display_name"`
	CoordinatesType string           `json:"coordinates_type"`
}

// Parse decodes a layout document into resolved sensors keyed by layout key.
func Parse(data []byte) (map[string]ConfiguredSensor, error) {
	var layout Layout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}

	out := make(map[string]ConfiguredSensor)
	add := func(key string, location []float64, name, coordinates string) error {
		entry, err := resolve(key, location, name, coordinates)
		if err != nil {
			return err
		}
		out[entry.Key] = entry
		return nil
	}
	for _, key := range sortedKeys(layout.Sensores) {
		e := layout.Sensores[key]
		if err := add(key, e.Location, e.Zone, e.CoordinatesType); err != nil {
			return nil, err
		}
	}
	for _, key := range sortedKeys(layout.Sensors) {
		e := layout.Sensors[key]
		if err := add(key, e.Location, firstNonEmpty(e.Zone, e.Room), e.CoordinatesType); err != nil {
			return nil, err
		}
	}
	for _, key := range sortedKeys(layout.Microcontrollers) {
		e := layout.Microcontrollers[key]
		if err := add(key, e.Location, firstNonEmpty(e.Room, e.Zone), e.CoordinatesType); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func resolve(key string, location []float64, name, coordinates string) (ConfiguredSensor, error) {
	if len(location) != 2 {
		return ConfiguredSensor{}, fmt.Errorf("%w: %s: location needs 2 coordinates", ErrInvalidLayout, key)
	}
	coordinates = strings.ToLower(strings.TrimSpace(coordinates))
	if coordinates == "" {
		coordinates = coordinatesRelative
	}

	var pos sensors.Position
	switch coordinates {
	case coordinatesRelative:
		pos = sensors.Position{X: location[0], Y: location[1]}
	case coordinatesGPS:
		// [lat, lon]: longitude is the horizontal axis.
		pos = sensors.Position{X: location[1], Y: location[0]}
	default:
		return ConfiguredSensor{}, fmt.Errorf("%w: %s: unknown coordinates_type %q", ErrInvalidLayout, key, coordinates)
	}

	id := SensorID(key)
	if name == "" {
		name = id
	}
	return ConfiguredSensor{
		SensorID:        id,
		Key:             LayoutKey(key),
		Position:        pos,
		DisplayName:     name,
		CoordinatesType: coordinates,
	}, nil
}

// LayoutKey returns the prefixed layout key for a sensor id.
func LayoutKey(sensorID string) string {
	if strings.HasPrefix(sensorID, KeyPrefix) {
		return sensorID
	}
	return KeyPrefix + sensorID
}

// SensorID strips the layout prefix.
func SensorID(key string) string {
	return strings.TrimPrefix(key, KeyPrefix)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
