package apihttp

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	aggregation "noisemap/internal/aggregation/domain"
	"noisemap/internal/analytics/application"
	"noisemap/internal/analytics/domain/statistic"
	sensors "noisemap/internal/sensors/domain"
	"noisemap/internal/sensors/infrastructure/yamlconfig"
)

// SnapshotReader exposes the live pipeline state.
type SnapshotReader interface {
	CurrentSnapshot() *aggregation.Snapshot
	History(sensorID string, limit int) []sensors.Sample
	AllHistory(limit int) map[string][]sensors.Sample
}

// HistoryReader answers historical queries.
type HistoryReader interface {
	Query(ctx context.Context, q application.HistoryQuery) ([]application.HistoryRow, error)
	Recent(ctx context.Context, hours int) ([]application.HistoryRow, error)
	Statistics(ctx context.Context, sensorID string, hours int, window string) (statistic.Summary, error)
}

// Layout exposes the configured sensor layout.
type Layout interface {
	Sensors() []yamlconfig.ConfiguredSensor
	Reload() (int, error)
}

// ClientCounter reports connected live clients.
type ClientCounter interface {
	ClientCount() int
}

// Deps wires the API. Snapshots is required; the rest are optional and
// their routes answer 503 when absent.
type Deps struct {
	Snapshots SnapshotReader
	History   HistoryReader
	Layout    Layout
	Live      []ClientCounter
	Ingest    http.Handler
	Stream    http.Handler
	WebSocket http.Handler
	Metrics   http.Handler
	Now       func() time.Time
	Logger    *log.Logger
}

// Handlers serves the HTTP API.
type Handlers struct {
	snapshots SnapshotReader
	history   HistoryReader
	layout    Layout
	live      []ClientCounter
	now       func() time.Time
	logger    *log.Logger
}

// NewHandlers constructs Handlers.
func NewHandlers(deps Deps) (*Handlers, error) {
	if deps.Snapshots == nil {
		return nil, errors.New("api: nil snapshot reader")
	}
	h := &Handlers{
		snapshots: deps.Snapshots,
		history:   deps.History,
		layout:    deps.Layout,
		live:      deps.Live,
		now:       deps.Now,
		logger:    deps.Logger,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.logger == nil {
		h.logger = log.Default()
	}
	return h, nil
}

// NewRouter builds the full route table.
func NewRouter(deps Deps) (*mux.Router, error) {
	h, err := NewHandlers(deps)
	if err != nil {
		return nil, err
	}
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}
	if deps.WebSocket != nil {
		r.Handle("/ws", deps.WebSocket)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	if deps.Ingest != nil {
		api.Handle("/ingest", deps.Ingest).Methods(http.MethodPost)
	}
	if deps.Stream != nil {
		api.Handle("/stream", deps.Stream).Methods(http.MethodGet)
	}
	api.HandleFunc("/sensors", h.sensors).Methods(http.MethodGet)
	api.HandleFunc("/sensors/history", h.allSensorHistory).Methods(http.MethodGet)
	api.HandleFunc("/sensors/{id}/history", h.sensorHistory).Methods(http.MethodGet)
	api.HandleFunc("/latest", h.latest).Methods(http.MethodGet)
	api.HandleFunc("/field.png", h.fieldPNG).Methods(http.MethodGet)
	api.HandleFunc("/history", h.historyQuery).Methods(http.MethodPost)
	api.HandleFunc("/history/recent", h.historyRecent).Methods(http.MethodGet)
	api.HandleFunc("/statistics/{sensor_id}", h.statistics).Methods(http.MethodGet)
	api.HandleFunc("/exports/history.csv", h.exportHistoryCSV).Methods(http.MethodGet)
	api.HandleFunc("/exports/history.xlsx", h.exportHistoryXLSX).Methods(http.MethodGet)
	api.HandleFunc("/exports/statistics/{sensor_id}.pdf", h.exportStatisticsPDF).Methods(http.MethodGet)
	api.HandleFunc("/config/reload", h.reloadConfig).Methods(http.MethodPost)
	return r, nil
}
