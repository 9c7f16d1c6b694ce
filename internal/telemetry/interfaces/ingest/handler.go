package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"noisemap/internal/observability/metrics"
	telemetry "noisemap/internal/telemetry/domain"
)

const maxBodyBytes = 1 << 20

// SampleSink receives one averaged value per logical sensor.
type SampleSink interface {
	Ingest(ctx context.Context, sensorID string, value float64, timestamp *int64) error
}

// Result summarizes one processed message.
type Result struct {
	MessageID string `json:"message_id"`
	Accepted  int    `json:"accepted"`
	Readings  int    `json:"readings"`
	Dropped   int    `json:"dropped"`
	Persisted bool   `json:"persisted"`
}

// Handler accepts gateway messages over HTTP.
type Handler struct {
	sink   SampleSink
	repo   telemetry.ReadingRepository
	now    func() time.Time
	logger *log.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithRepository persists raw replicate readings.
func WithRepository(repo telemetry.ReadingRepository) Option {
	return func(h *Handler) {
		h.repo = repo
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithNow overrides the receive clock.
func WithNow(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs an ingest handler.
func NewHandler(sink SampleSink, opts ...Option) (*Handler, error) {
	if sink == nil {
		return nil, errors.New("noise ingest: nil sink")
	}
	h := &Handler{sink: sink, now: time.Now, logger: log.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP ingests one gateway message.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Printf("noise ingest: read body error: %v", err)
		metrics.IncIngestError("read")
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Printf("noise ingest: decode error: %v", err)
		metrics.IncIngestError("decode")
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if msg.Sensors == nil {
		metrics.IncIngestError("payload")
		http.Error(w, "missing sensors", http.StatusBadRequest)
		return
	}

	res := h.Process(r.Context(), msg)
	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// Process averages, persists and forwards one message. Storage failures are
// logged and reported in the result; they never block the live pipeline.
func (h *Handler) Process(ctx context.Context, msg Message) Result {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	// Gateways stamp messages with their own clock, often time since boot.
	// History is keyed by receive time; the sender value is passed along as is.
	ts := h.now().UTC()
	var sent *int64
	if msg.Timestamp != 0 {
		v := msg.Timestamp
		sent = &v
	}

	averages, dropped := AverageReplicates(msg.Sensors)
	res := Result{MessageID: msg.MessageID, Dropped: dropped}

	readings := make([]telemetry.Reading, 0, len(msg.Sensors))
	for _, entry := range msg.Sensors {
		if !entry.valid() {
			continue
		}
		readings = append(readings, telemetry.Reading{
			SensorID:  entry.ID(),
			Replicate: entry.Replicate(),
			Value:     *entry.Value,
			TS:        ts,
		})
	}
	res.Readings = len(readings)

	if h.repo != nil && len(readings) > 0 {
		if err := h.repo.InsertReadings(ctx, readings); err != nil {
			h.logger.Printf("noise ingest: persist %s error: %v", msg.MessageID, err)
			metrics.IncIngestError("persist")
		} else {
			res.Persisted = true
		}
	}

	for _, avg := range averages {
		if err := h.sink.Ingest(ctx, avg.SensorID, avg.Value, sent); err != nil {
			h.logger.Printf("noise ingest: sensor %s rejected: %v", avg.SensorID, err)
			res.Dropped++
			continue
		}
		res.Accepted++
	}
	if res.Dropped > 0 {
		metrics.AddDroppedSamples("malformed", res.Dropped)
		h.logger.Printf("noise ingest: message %s dropped %d entries", msg.MessageID, res.Dropped)
	}
	return res
}
