package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noisemap/internal/analytics/application"
	telemetry "noisemap/internal/telemetry/domain"
	"noisemap/internal/telemetry/infrastructure/memory"
)

type ingested struct {
	sensorID  string
	value     float64
	timestamp *int64
}

type recordingSink struct {
	mu    sync.Mutex
	calls []ingested
}

func (s *recordingSink) Ingest(_ context.Context, sensorID string, value float64, timestamp *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ingested{sensorID, value, timestamp})
	return nil
}

type failingRepo struct{}

func (failingRepo) InsertReadings(context.Context, []telemetry.Reading) error {
	return errors.New("disk full")
}

func f64(v float64) *float64 { return &v }

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestAverageReplicates(t *testing.T) {
	entries := []SensorEntry{
		{MicroID: "E255", Value: f64(43.2), Sample: json.RawMessage(`1`)},
		{MicroID: "E255", Value: f64(41.6), Sample: json.RawMessage(`2`)},
		{SensorID: "micro_E7", Value: f64(60), Sample: json.RawMessage(`"a"`)},
		{MicroID: "E255", Value: f64(45.2), Sample: json.RawMessage(`3`)},
		{MicroID: "E9", Sample: json.RawMessage(`1`)},
		{Value: f64(50), Sample: json.RawMessage(`1`)},
		{MicroID: "E9", Value: f64(50)},
	}

	averages, dropped := AverageReplicates(entries)
	assert.Equal(t, 3, dropped)
	require.Len(t, averages, 2)
	assert.Equal(t, "E255", averages[0].SensorID)
	assert.InDelta(t, 43.333333, averages[0].Value, 1e-5)
	assert.Equal(t, 3, averages[0].Count)
	assert.Equal(t, Average{SensorID: "E7", Value: 60, Count: 1}, averages[1])
}

func TestHandlerPersistsRawAndForwardsAverages(t *testing.T) {
	sink := &recordingSink{}
	received := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.NewReadingRepository(0)
	h, err := NewHandler(sink, WithRepository(repo), WithNow(func() time.Time { return received }), WithLogger(quietLogger()))
	require.NoError(t, err)

	body := `{"message_id":"esp32_000033","timestamp":1714564800,"sensors":[
		{"micro_id":"E255","value":43.2,"sample":1},
		{"micro_id":"E255","value":41.6,"sample":2},
		{"micro_id":"E3","value":70,"sample":1},
		{"micro_id":"E3","value":"loud","sample":2}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// A non-numeric value fails the whole decode.
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = strings.Replace(body, `"value":"loud",`, ``, 1)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var res Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, Result{MessageID: "esp32_000033", Accepted: 2, Readings: 3, Dropped: 1, Persisted: true}, res)

	require.Len(t, sink.calls, 2)
	assert.Equal(t, "E255", sink.calls[0].sensorID)
	assert.InDelta(t, 42.4, sink.calls[0].value, 1e-9)
	require.NotNil(t, sink.calls[0].timestamp)
	assert.Equal(t, int64(1714564800), *sink.calls[0].timestamp)

	stored, err := repo.QueryRange(context.Background(), received.Add(-time.Second), received.Add(time.Second), nil)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, telemetry.Reading{SensorID: "E255", Replicate: "1", Value: 43.2, TS: received}, stored[0])
}

func TestHandlerGeneratesMessageIDAndUsesReceiveTime(t *testing.T) {
	sink := &recordingSink{}
	received := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.NewReadingRepository(0)
	h, err := NewHandler(sink, WithRepository(repo), WithNow(func() time.Time { return received }), WithLogger(quietLogger()))
	require.NoError(t, err)

	res := h.Process(context.Background(), Message{Sensors: []SensorEntry{
		{MicroID: "E1", Value: f64(50), Sample: json.RawMessage(`1`)},
	}})
	assert.NotEmpty(t, res.MessageID)
	assert.Equal(t, 1, res.Accepted)
	require.Len(t, sink.calls, 1)
	assert.Nil(t, sink.calls[0].timestamp)

	stored, err := repo.QueryRange(context.Background(), received, received.Add(time.Second), []string{"E1"})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestHandlerPersistFailureStillFeedsPipeline(t *testing.T) {
	sink := &recordingSink{}
	h, err := NewHandler(sink, WithRepository(failingRepo{}), WithLogger(quietLogger()))
	require.NoError(t, err)

	res := h.Process(context.Background(), Message{Timestamp: 1714564800000, Sensors: []SensorEntry{
		{MicroID: "E1", Value: f64(50), Sample: json.RawMessage(`1`)},
	}})
	assert.False(t, res.Persisted)
	assert.Equal(t, 1, res.Accepted)
	require.Len(t, sink.calls, 1)
	assert.Equal(t, int64(1714564800000), *sink.calls[0].timestamp)
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	h, err := NewHandler(&recordingSink{}, WithLogger(quietLogger()))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingest", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{"message_id":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewHandlerRequiresSink(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestHandlerStoresBootClockMessagesAtReceiveTime(t *testing.T) {
	sink := &recordingSink{}
	now := time.Now().UTC()
	received := now.Add(-time.Minute)
	repo := memory.NewReadingRepository(7 * 24 * time.Hour)
	h, err := NewHandler(sink, WithRepository(repo), WithNow(func() time.Time { return received }), WithLogger(quietLogger()))
	require.NoError(t, err)

	// ticks_ms since gateway boot, not a wall clock.
	res := h.Process(context.Background(), Message{Timestamp: 824224068, Sensors: []SensorEntry{
		{MicroID: "E255", Value: f64(43.2), Sample: json.RawMessage(`1`)},
		{MicroID: "E255", Value: f64(41.6), Sample: json.RawMessage(`2`)},
	}})
	assert.True(t, res.Persisted)
	require.Len(t, sink.calls, 1)
	require.NotNil(t, sink.calls[0].timestamp)
	assert.Equal(t, int64(824224068), *sink.calls[0].timestamp)

	history, err := application.NewHistoryService(repo, nil, fixedClock(now))
	require.NoError(t, err)
	rows, err := history.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "E255", rows[0].SensorID)
	assert.InDelta(t, 42.4, rows[0].Value, 1e-9)
	assert.Equal(t, 2, rows[0].Replicates)

	summary, err := history.Statistics(context.Background(), "E255", 24, "1m")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count)
}
