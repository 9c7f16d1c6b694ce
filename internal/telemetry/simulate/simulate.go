// Package simulate produces synthetic gateway messages from a single decaying
// point source and posts them to an ingest endpoint.
package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	spatial "noisemap/internal/spatial/domain"
	"noisemap/internal/telemetry/interfaces/ingest"
)

// Sensor is a simulated sensor position.
type Sensor struct {
	ID string
	X  float64
	Y  float64
}

// Source is the simulated emitter.
type Source struct {
	X     float64
	Y     float64
	Level float64
}

// Generator builds gateway messages. It is not safe for concurrent use.
type Generator struct {
	sensors    []Sensor
	source     Source
	replicates int
	noise      float64
	floor      float64
	rng        *rand.Rand
	seq        int
}

// Option configures a Generator.
type Option func(*Generator)

// WithReplicates sets the samples per sensor per message.
func WithReplicates(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.replicates = n
		}
	}
}

// WithNoise sets the standard deviation of the added gaussian noise in dB.
func WithNoise(sigma float64) Option {
	return func(g *Generator) {
		if sigma >= 0 {
			g.noise = sigma
		}
	}
}

// WithSeed makes the noise sequence reproducible.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithFloor sets the ambient level added to every reading.
func WithFloor(db float64) Option {
	return func(g *Generator) {
		g.floor = db
	}
}

// NewGenerator constructs a generator.
func NewGenerator(sensors []Sensor, source Source, opts ...Option) (*Generator, error) {
	if len(sensors) == 0 {
		return nil, errors.New("simulate: no sensors")
	}
	g := &Generator{
		sensors:    append([]Sensor(nil), sensors...),
		source:     source,
		replicates: 3,
		noise:      1,
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 1)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Level returns the noiseless reading at (x, y).
func (g *Generator) Level(x, y float64) float64 {
	d := math.Hypot(x-g.source.X, y-g.source.Y)
	return g.floor + g.source.Level*math.Exp(-d/spatial.DecayConstant)
}

// Next returns the next message stamped at.
func (g *Generator) Next(at time.Time) ingest.Message {
	g.seq++
	msg := ingest.Message{
		MessageID: fmt.Sprintf("sim_%06d", g.seq),
		Timestamp: at.Unix(),
		Sensors:   make([]ingest.SensorEntry, 0, len(g.sensors)*g.replicates),
	}
	for _, s := range g.sensors {
		base := g.Level(s.X, s.Y)
		for i := 0; i < g.replicates; i++ {
			v := math.Round((base+g.rng.NormFloat64()*g.noise)*10) / 10
			msg.Sensors = append(msg.Sensors, ingest.SensorEntry{
				MicroID: s.ID,
				Value:   &v,
				Sample:  json.RawMessage(strconv.Itoa(i + 1)),
			})
		}
	}
	return msg
}

// GridSensors lays out cols x rows sensors evenly over [0,width] x [0,height].
func GridSensors(cols, rows int, width, height float64) []Sensor {
	out := make([]Sensor, 0, cols*rows)
	step := func(n int, span float64, i int) float64 {
		if n <= 1 {
			return span / 2
		}
		return span * float64(i) / float64(n-1)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out = append(out, Sensor{
				ID: fmt.Sprintf("E%d", r*cols+c+1),
				X:  step(cols, width, c),
				Y:  step(rows, height, r),
			})
		}
	}
	return out
}

// Post sends msg to baseURL's ingest endpoint.
func Post(ctx context.Context, client *http.Client, baseURL string, msg ingest.Message) (ingest.Result, error) {
	if strings.TrimSpace(baseURL) == "" {
		return ingest.Result{}, errors.New("simulate: base url required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return ingest.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/v1/ingest", bytes.NewReader(payload))
	if err != nil {
		return ingest.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return ingest.Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return ingest.Result{}, fmt.Errorf("simulate: ingest %s failed: http %d", msg.MessageID, resp.StatusCode)
	}
	var res ingest.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return ingest.Result{}, err
	}
	return res, nil
}
