package yamlconfig

import (
	"errors"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	sensors "noisemap/internal/sensors/domain"
)

// DefaultCacheTTL bounds how long a parsed layout is reused before the file is re-read.
const DefaultCacheTTL = 5 * time.Second

// Locator resolves sensor placements from a YAML layout file.
type Locator struct {
	path   string
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger

	mu       sync.Mutex
	entries  map[string]ConfiguredSensor
	loadedAt time.Time
	loaded   bool
}

// Option configures the locator.
type Option func(*Locator)

// WithCacheTTL overrides the layout cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(l *Locator) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Locator) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithNow overrides the time source used for cache expiry.
func WithNow(now func() time.Time) Option {
	return func(l *Locator) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLocator constructs a locator reading path. The file is loaded eagerly; a
// load failure is returned but the locator stays usable with default placements.
func NewLocator(path string, opts ...Option) (*Locator, error) {
	if path == "" {
		return nil, errors.New("sensor layout: empty path")
	}
	l := &Locator{
		path:    path,
		ttl:     DefaultCacheTTL,
		now:     time.Now,
		logger:  log.Default(),
		entries: map[string]ConfiguredSensor{},
	}
	for _, opt := range opts {
		opt(l)
	}
	_, err := l.Reload()
	return l, err
}

// Locate implements sensors.Locator.
func (l *Locator) Locate(sensorID string) sensors.Placement {
	entries := l.current()
	if entry, ok := entries[LayoutKey(sensorID)]; ok {
		return sensors.Placement{Position: entry.Position, DisplayName: entry.DisplayName, Known: true}
	}
	l.logger.Printf("sensor layout: sensor %q not configured, using default placement", sensorID)
	return sensors.DefaultPlacement(sensorID)
}

// Sensors lists the configured sensors sorted by id.
func (l *Locator) Sensors() []ConfiguredSensor {
	entries := l.current()
	out := make([]ConfiguredSensor, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}

// Reload re-reads the layout file. On failure the previous entries are kept.
func (l *Locator) Reload() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reloadLocked()
}

func (l *Locator) current() map[string]ConfiguredSensor {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded || l.now().Sub(l.loadedAt) >= l.ttl {
		if _, err := l.reloadLocked(); err != nil {
			l.logger.Printf("sensor layout: reload %s: %v", l.path, err)
		}
	}
	return l.entries
}

func (l *Locator) reloadLocked() (int, error) {
	l.loadedAt = l.now()
	l.loaded = true

	data, err := os.ReadFile(l.path)
	if err != nil {
		return len(l.entries), err
	}
	entries, err := Parse(data)
	if err != nil {
		return len(l.entries), err
	}
	l.entries = entries
	return len(entries), nil
}
