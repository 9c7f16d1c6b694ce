package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"noisemap/internal/aggregation/application"
	spatial "noisemap/internal/spatial/domain"
)

type config struct {
	DatabaseURL       string
	SQLitePath        string
	HTTPAddr          string
	RecomputeInterval time.Duration
	GridSize          int
	IDWPower          int
	MarginPercent     float64
	PlaneBounds       *spatial.Bounds
	SensorsConfig     string
	SensorsCacheTTL   time.Duration
	FieldCacheSize    int
	EstimateTimeout   time.Duration
	ReadingRetention  time.Duration
}

func loadConfig() (config, error) {
	cfg := config{
		DatabaseURL:       getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		SQLitePath:        getenvDefault("SQLITE_PATH", ""),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		RecomputeInterval: getenvDuration("RECOMPUTE_INTERVAL", application.DefaultRecomputeInterval),
		GridSize:          getenvIntDefault("GRID_SIZE", spatial.DefaultGridSize),
		IDWPower:          getenvIntDefault("IDW_POWER", spatial.DefaultPower),
		MarginPercent:     getenvFloatDefault("MARGIN_PERCENT", spatial.DefaultMarginPercent),
		SensorsConfig:     getenvDefault("SENSORS_CONFIG", ""),
		SensorsCacheTTL:   getenvDuration("SENSORS_CACHE_TTL", 5*time.Second),
		FieldCacheSize:    getenvIntDefault("FIELD_CACHE_SIZE", 16),
		EstimateTimeout:   getenvDuration("ESTIMATE_TIMEOUT", 0),
		ReadingRetention:  getenvDuration("READING_RETENTION", 7*24*time.Hour),
	}
	if raw := getenvDefault("PLANE_BOUNDS", ""); raw != "" {
		b, err := parseBounds(raw)
		if err != nil {
			return config{}, err
		}
		cfg.PlaneBounds = &b
	}
	if cfg.GridSize < 2 {
		return config{}, fmt.Errorf("GRID_SIZE must be at least 2, got %d", cfg.GridSize)
	}
	if cfg.IDWPower < 1 {
		return config{}, fmt.Errorf("IDW_POWER must be a positive integer, got %d", cfg.IDWPower)
	}
	return cfg, nil
}

func (c config) pipelineSettings() application.Settings {
	return application.Settings{
		RecomputeInterval: c.RecomputeInterval,
		GridSize:          c.GridSize,
		Power:             c.IDWPower,
		MarginPercent:     c.MarginPercent,
		Plane:             c.PlaneBounds,
		EstimateTimeout:   c.EstimateTimeout,
	}
}

// parseBounds reads "xmin,xmax,ymin,ymax".
func parseBounds(raw string) (spatial.Bounds, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return spatial.Bounds{}, fmt.Errorf("PLANE_BOUNDS must be xmin,xmax,ymin,ymax: %q", raw)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return spatial.Bounds{}, fmt.Errorf("PLANE_BOUNDS: %q: %w", p, err)
		}
		v[i] = f
	}
	b := spatial.Bounds{XMin: v[0], XMax: v[1], YMin: v[2], YMax: v[3]}
	if !b.Valid() {
		return spatial.Bounds{}, fmt.Errorf("PLANE_BOUNDS: empty box %q", raw)
	}
	return b, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
