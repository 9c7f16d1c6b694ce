package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"noisemap/internal/aggregation/application/eventbus"
	"noisemap/internal/aggregation/application/events"
	aggregation "noisemap/internal/aggregation/domain"
	"noisemap/internal/observability/metrics"
	sensors "noisemap/internal/sensors/domain"
	spatial "noisemap/internal/spatial/domain"
)

// DefaultRecomputeInterval is the minimum spacing between recomputations.
const DefaultRecomputeInterval = 10 * time.Second

var (
	// ErrEmptySensorID is returned for samples without identity.
	ErrEmptySensorID = errors.New("pipeline: empty sensor id")
	// ErrInvalidValue is returned for non-finite readings.
	ErrInvalidValue = errors.New("pipeline: invalid value")
)

// Interpolator produces an interpolated field.
type Interpolator interface {
	Interpolate(x, y, z []float64, bounds spatial.Bounds, opts spatial.IDWOptions) (*spatial.Field, bool)
}

// Estimator produces an epicenter estimate.
type Estimator interface {
	Estimate(x, y, z []float64, opts spatial.EpicenterOptions) (*spatial.Epicenter, bool)
}

// InterpolatorFunc adapts a function to Interpolator.
type InterpolatorFunc func(x, y, z []float64, bounds spatial.Bounds, opts spatial.IDWOptions) (*spatial.Field, bool)

// Interpolate implements Interpolator.
func (f InterpolatorFunc) Interpolate(x, y, z []float64, bounds spatial.Bounds, opts spatial.IDWOptions) (*spatial.Field, bool) {
	return f(x, y, z, bounds, opts)
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(x, y, z []float64, opts spatial.EpicenterOptions) (*spatial.Epicenter, bool)

// Estimate implements Estimator.
func (f EstimatorFunc) Estimate(x, y, z []float64, opts spatial.EpicenterOptions) (*spatial.Epicenter, bool) {
	return f(x, y, z, opts)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// IDFactory builds snapshot ids.
type IDFactory func() string

// Settings configures recomputation.
type Settings struct {
	RecomputeInterval time.Duration
	GridSize          int
	Power             int
	MarginPercent     float64
	// Plane optionally clamps the interpolation bounds and the epicenter search box.
	Plane           *spatial.Bounds
	EstimateTimeout time.Duration
}

// DefaultSettings returns the standard settings.
func DefaultSettings() Settings {
	return Settings{
		RecomputeInterval: DefaultRecomputeInterval,
		GridSize:          spatial.DefaultGridSize,
		Power:             spatial.DefaultPower,
		MarginPercent:     spatial.DefaultMarginPercent,
	}
}

// Pipeline serializes sample ingestion and recomputation and publishes
// immutable snapshots. Readers never block on recomputation.
type Pipeline struct {
	mu            sync.Mutex
	store         *sensors.Store
	interpolator  Interpolator
	estimator     Estimator
	bus           eventbus.Bus
	clock         Clock
	newID         IDFactory
	logger        *log.Logger
	settings      Settings
	lastRecompute time.Time
	field         *spatial.Field
	epicenter     *spatial.Epicenter

	seq           uint64

	// notifyMu orders bus delivery; notified is the newest seq delivered.
	notifyMu sync.Mutex
	notified uint64

	current        atomic.Pointer[aggregation.Snapshot]
	recomputations atomic.Uint64
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithInterpolator overrides the interpolator.
func WithInterpolator(i Interpolator) Option {
	return func(p *Pipeline) {
		if i != nil {
			p.interpolator = i
		}
	}
}

// WithEstimator overrides the estimator.
func WithEstimator(e Estimator) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.estimator = e
		}
	}
}

// WithBus sets the event bus receiving SnapshotPublished.
func WithBus(bus eventbus.Bus) Option {
	return func(p *Pipeline) {
		p.bus = bus
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithIDFactory overrides snapshot id generation.
func WithIDFactory(f IDFactory) Option {
	return func(p *Pipeline) {
		if f != nil {
			p.newID = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithSettings overrides recomputation settings. Zero fields keep their defaults.
func WithSettings(s Settings) Option {
	return func(p *Pipeline) {
		if s.RecomputeInterval > 0 {
			p.settings.RecomputeInterval = s.RecomputeInterval
		}
		if s.GridSize > 0 {
			p.settings.GridSize = s.GridSize
		}
		if s.Power > 0 {
			p.settings.Power = s.Power
		}
		if s.MarginPercent > 0 {
			p.settings.MarginPercent = s.MarginPercent
		}
		if s.Plane != nil && s.Plane.Valid() {
			plane := *s.Plane
			p.settings.Plane = &plane
		}
		if s.EstimateTimeout > 0 {
			p.settings.EstimateTimeout = s.EstimateTimeout
		}
	}
}

// NewPipeline constructs a pipeline over store.
func NewPipeline(store *sensors.Store, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("pipeline: nil store")
	}
	p := &Pipeline{
		store:        store,
		interpolator: InterpolatorFunc(spatial.Interpolate),
		estimator:    EstimatorFunc(spatial.EstimateEpicenter),
		clock:        sensors.SystemClock{},
		newID:        uuid.NewString,
		logger:       log.Default(),
		settings:     DefaultSettings(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.current.Store(aggregation.Empty(p.clock.Now()))
	return p, nil
}

// Ingest records a sample, recomputes when due and publishes a new snapshot.
func (p *Pipeline) Ingest(ctx context.Context, sensorID string, value float64, timestamp *int64) error {
	if sensorID == "" {
		return ErrEmptySensorID
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidValue, value)
	}

	snap, seq, recomputed := p.ingestLocked(sensorID, value, timestamp)
	p.notify(ctx, snap, seq, recomputed)
	return nil
}

func (p *Pipeline) ingestLocked(sensorID string, value float64, timestamp *int64) (*aggregation.Snapshot, uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store.Upsert(sensorID, value, timestamp)
	now := p.clock.Now()
	recomputed := false
	if p.dueLocked(now) {
		p.recomputeLocked(now)
		recomputed = true
	}
	snap, seq := p.publishLocked(now)
	return snap, seq, recomputed
}

// ForceRecompute recomputes immediately, ignoring the interval, when at least
// two sensors are known.
func (p *Pipeline) ForceRecompute(ctx context.Context) *aggregation.Snapshot {
	snap, seq, recomputed := p.forceLocked()
	p.notify(ctx, snap, seq, recomputed)
	return snap
}

func (p *Pipeline) forceLocked() (*aggregation.Snapshot, uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock.Now()
	recomputed := false
	if p.store.Count() >= 2 {
		p.recomputeLocked(now)
		recomputed = true
	}
	snap, seq := p.publishLocked(now)
	return snap, seq, recomputed
}

// CurrentSnapshot returns the latest published snapshot.
func (p *Pipeline) CurrentSnapshot() *aggregation.Snapshot {
	return p.current.Load()
}

// Recomputations returns the number of recomputations performed.
func (p *Pipeline) Recomputations() uint64 {
	return p.recomputations.Load()
}

// History returns recent samples for one sensor.
func (p *Pipeline) History(sensorID string, limit int) []sensors.Sample {
	return p.store.History(sensorID, limit)
}

// AllHistory returns recent samples for every sensor.
func (p *Pipeline) AllHistory(limit int) map[string][]sensors.Sample {
	return p.store.AllHistory(limit)
}

func (p *Pipeline) dueLocked(now time.Time) bool {
	if p.store.Count() < 2 {
		return false
	}
	if p.lastRecompute.IsZero() {
		return true
	}
	return now.Sub(p.lastRecompute) >= p.settings.RecomputeInterval
}

func (p *Pipeline) recomputeLocked(now time.Time) {
	start := time.Now()
	points := p.store.PositionsValues()
	x := make([]float64, len(points))
	y := make([]float64, len(points))
	z := make([]float64, len(points))
	for i, pt := range points {
		x[i], y[i], z[i] = pt.X, pt.Y, pt.Value
	}

	bounds := spatial.PadBounds(x, y, p.settings.MarginPercent, p.settings.Plane)
	field, fieldOK := p.interpolate(x, y, z, bounds)
	if fieldOK {
		field.ComputedAt = now
		p.field = field
	} else {
		p.field = nil
	}

	est, estOK := p.estimate(x, y, z)
	fallback := false
	if estOK {
		est.ComputedAt = now
		fallback = est.UsedFallback
		p.epicenter = est
	} else {
		p.epicenter = nil
	}

	p.lastRecompute = now
	p.recomputations.Add(1)
	metrics.ObserveRecompute(fieldOK, estOK, fallback, time.Since(start))
	if fallback {
		p.logger.Printf("pipeline: epicenter fell back to loudest sensor (%d sensors)", len(points))
	}
}

func (p *Pipeline) interpolate(x, y, z []float64, bounds spatial.Bounds) (field *spatial.Field, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("pipeline: interpolator panic: %v", r)
			field, ok = nil, false
		}
	}()
	type statser interface {
		Stats() (hits, misses uint64)
	}
	opts := spatial.IDWOptions{GridSize: p.settings.GridSize, Power: p.settings.Power}
	cache, cached := p.interpolator.(statser)
	var before uint64
	if cached {
		before, _ = cache.Stats()
	}
	field, ok = p.interpolator.Interpolate(x, y, z, bounds, opts)
	if cached {
		after, _ := cache.Stats()
		metrics.IncFieldCache(after > before)
	}
	return field, ok
}

func (p *Pipeline) estimate(x, y, z []float64) (est *spatial.Epicenter, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("pipeline: estimator panic: %v", r)
			est, ok = nil, false
		}
	}()
	return p.estimator.Estimate(x, y, z, spatial.EpicenterOptions{
		Domain:  p.settings.Plane,
		Timeout: p.settings.EstimateTimeout,
	})
}

func (p *Pipeline) publishLocked(now time.Time) (*aggregation.Snapshot, uint64) {
	views := aggregation.ViewsFromRecords(p.store.Records())
	snap := &aggregation.Snapshot{
		ID:            p.newID(),
		Sensors:       views,
		Interpolation: p.field,
		Epicenter:     p.epicenter,
		SensorCount:   len(views),
		ComputedAt:    now,
	}
	p.current.Store(snap)
	p.seq++
	metrics.SetActiveSensors(len(views))
	return snap, p.seq
}

// notify delivers snapshots in publish order. A snapshot superseded before
// its turn is skipped so subscribers never step back to older state.
func (p *Pipeline) notify(ctx context.Context, snap *aggregation.Snapshot, seq uint64, recomputed bool) {
	if p.bus == nil {
		return
	}
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	if seq <= p.notified {
		return
	}
	p.notified = seq
	evt := events.SnapshotPublished{
		SnapshotID:  snap.ID,
		SensorCount: snap.SensorCount,
		Recomputed:  recomputed,
		OccurredAt:  snap.ComputedAt,
		Snapshot:    snap,
	}
	if snap.Epicenter != nil {
		evt.UsedFallback = snap.Epicenter.UsedFallback
	}
	if err := p.bus.Publish(ctx, evt); err != nil {
		p.logger.Printf("pipeline: publish snapshot %s: %v", snap.ID, err)
	}
}
