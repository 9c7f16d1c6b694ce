package apihttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"noisemap/internal/analytics/application"
	"noisemap/internal/analytics/domain/statistic"
	"noisemap/internal/analytics/interfaces/export"
	"noisemap/internal/observability/metrics"
	"noisemap/internal/sensors/infrastructure/yamlconfig"
	"noisemap/internal/spatial/render"
)

const (
	timeLayout = time.RFC3339
	// Recent history looks back at most a week, statistics and exports a month.
	maxRecentHours     = 168
	maxStatisticsHours = 720
	defaultLimit       = 0
)

type healthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	SensorCount int       `json:"sensor_count"`
	LiveClients int       `json:"live_clients"`
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Timestamp: h.now().UTC()}
	if snap := h.snapshots.CurrentSnapshot(); snap != nil {
		resp.SensorCount = snap.SensorCount
	}
	for _, c := range h.live {
		if c != nil {
			resp.LiveClients += c.ClientCount()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) sensors(w http.ResponseWriter, r *http.Request) {
	if h.layout != nil {
		writeJSON(w, http.StatusOK, h.layout.Sensors())
		return
	}
	snap := h.snapshots.CurrentSnapshot()
	out := make([]yamlconfig.ConfiguredSensor, 0)
	if snap != nil {
		for _, s := range snap.Sensors {
			out = append(out, yamlconfig.ConfiguredSensor{
				SensorID:    s.SensorID,
				Key:         yamlconfig.LayoutKey(s.SensorID),
				Position:    s.Position,
				DisplayName: s.DisplayName,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) latest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshots.CurrentSnapshot())
}

func (h *Handlers) sensorHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntQuery(r, "limit", defaultLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := mux.Vars(r)["id"]
	samples := h.snapshots.History(id, limit)
	if samples == nil {
		http.Error(w, "sensor not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func (h *Handlers) allSensorHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntQuery(r, "limit", defaultLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshots.AllHistory(limit))
}

func (h *Handlers) fieldPNG(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.CurrentSnapshot()
	if snap == nil || snap.Interpolation == nil {
		http.Error(w, "no field computed yet", http.StatusNotFound)
		return
	}
	png, err := render.FieldPNG(snap.Interpolation, render.Options{
		Title:     "Noise level (dB)",
		Sensors:   snap.Positions(),
		Epicenter: snap.Epicenter,
	})
	if err != nil {
		metrics.IncExport("png", metrics.ResultError)
		h.logger.Printf("api: render field: %v", err)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	metrics.IncExport("png", metrics.ResultSuccess)
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

type historyRequest struct {
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time"`
	SensorIDs         []string   `json:"sensor_ids"`
	MicroIDs          []string   `json:"micro_ids"`
	Window            string     `json:"window"`
	AggregationWindow string     `json:"aggregation_window"`
}

func (req historyRequest) query(now time.Time) application.HistoryQuery {
	end := now
	if req.EndTime != nil {
		end = *req.EndTime
	}
	ids := req.SensorIDs
	if len(ids) == 0 {
		ids = req.MicroIDs
	}
	window := req.Window
	if window == "" {
		window = req.AggregationWindow
	}
	return application.HistoryQuery{Start: req.StartTime.UTC(), End: end.UTC(), SensorIDs: ids, Window: window}
}

func (h *Handlers) historyQuery(w http.ResponseWriter, r *http.Request) {
	if !h.historyReady(w) {
		return
	}
	var req historyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.StartTime.IsZero() {
		http.Error(w, "start_time is required", http.StatusBadRequest)
		return
	}
	rows, err := h.history.Query(r.Context(), req.query(h.now()))
	if err != nil {
		h.historyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handlers) historyRecent(w http.ResponseWriter, r *http.Request) {
	if !h.historyReady(w) {
		return
	}
	hours, err := parseHours(r, application.DefaultRecentHours, maxRecentHours)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := h.history.Recent(r.Context(), hours)
	if err != nil {
		h.historyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handlers) statistics(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.loadStatistics(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handlers) exportHistoryCSV(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.exportRows(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="history.csv"`)
	if err := export.WriteHistoryCSV(w, rows); err != nil {
		metrics.IncExport("csv", metrics.ResultError)
		h.logger.Printf("api: export csv: %v", err)
		return
	}
	metrics.IncExport("csv", metrics.ResultSuccess)
}

func (h *Handlers) exportHistoryXLSX(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.exportRows(w, r)
	if !ok {
		return
	}
	data, err := export.BuildHistoryXLSX(rows)
	if err != nil {
		metrics.IncExport("xlsx", metrics.ResultError)
		h.logger.Printf("api: export xlsx: %v", err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	metrics.IncExport("xlsx", metrics.ResultSuccess)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="history.xlsx"`)
	_, _ = w.Write(data)
}

func (h *Handlers) exportStatisticsPDF(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.loadStatistics(w, r)
	if !ok {
		return
	}
	data, err := export.BuildStatisticsPDF(summary, h.now())
	if err != nil {
		metrics.IncExport("pdf", metrics.ResultError)
		h.logger.Printf("api: export pdf: %v", err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	metrics.IncExport("pdf", metrics.ResultSuccess)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="statistics-%s.pdf"`, summary.SensorID))
	_, _ = w.Write(data)
}

type reloadResponse struct {
	Status  string `json:"status"`
	Sensors int    `json:"sensors"`
}

func (h *Handlers) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.layout == nil {
		http.Error(w, "sensor layout not configured", http.StatusServiceUnavailable)
		return
	}
	count, err := h.layout.Reload()
	if err != nil {
		h.logger.Printf("api: reload layout: %v", err)
		http.Error(w, "reload error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{Status: "reloaded", Sensors: count})
}

func (h *Handlers) historyReady(w http.ResponseWriter) bool {
	if h.history == nil {
		http.Error(w, "history store not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (h *Handlers) historyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, statistic.ErrInvalidWindow), errors.Is(err, statistic.ErrInvalidRange), errors.Is(err, statistic.ErrEmptySensorID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, statistic.ErrNoData):
		http.Error(w, "no data for sensor", http.StatusNotFound)
	default:
		h.logger.Printf("api: history query: %v", err)
		http.Error(w, "query history error", http.StatusInternalServerError)
	}
}

func (h *Handlers) loadStatistics(w http.ResponseWriter, r *http.Request) (statistic.Summary, bool) {
	if !h.historyReady(w) {
		return statistic.Summary{}, false
	}
	hours, err := parseHours(r, application.DefaultStatisticsHours, maxStatisticsHours)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return statistic.Summary{}, false
	}
	summary, err := h.history.Statistics(r.Context(), mux.Vars(r)["sensor_id"], hours, r.URL.Query().Get("window"))
	if err != nil {
		h.historyError(w, err)
		return statistic.Summary{}, false
	}
	return summary, true
}

// exportRows resolves the export range from from/to, or from hours back from now.
func (h *Handlers) exportRows(w http.ResponseWriter, r *http.Request) ([]application.HistoryRow, bool) {
	if !h.historyReady(w) {
		return nil, false
	}
	q := application.HistoryQuery{
		SensorIDs: r.URL.Query()["sensor_id"],
		Window:    r.URL.Query().Get("window"),
	}
	if r.URL.Query().Get("from") != "" {
		from, err := parseTimeQuery(r, "from")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return nil, false
		}
		to, err := parseTimeQuery(r, "to")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return nil, false
		}
		if !to.After(from) {
			http.Error(w, "to must be after from", http.StatusBadRequest)
			return nil, false
		}
		q.Start, q.End = from, to
	} else {
		hours, err := parseHours(r, application.DefaultStatisticsHours, maxStatisticsHours)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return nil, false
		}
		q.End = h.now().UTC()
		q.Start = q.End.Add(-time.Duration(hours) * time.Hour)
	}
	rows, err := h.history.Query(r.Context(), q)
	if err != nil {
		h.historyError(w, err)
		return nil, false
	}
	return rows, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

func parseIntQuery(r *http.Request, key string, def int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func parseHours(r *http.Request, def, limit int) (int, error) {
	value := r.URL.Query().Get("hours")
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 || n > limit {
		return 0, fmt.Errorf("hours must be between 1 and %d", limit)
	}
	return n, nil
}
