package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "noisemap_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec
	droppedSamples *prometheus.CounterVec

	recomputeTotal    *prometheus.CounterVec
	recomputeLatency  prometheus.Histogram
	epicenterFallback prometheus.Counter
	activeSensors     prometheus.Gauge
	fieldCacheLookups *prometheus.CounterVec

	historyQueryTotal   *prometheus.CounterVec
	historyQueryLatency *prometheus.HistogramVec
	exportTotal         *prometheus.CounterVec

	liveClients *prometheus.GaugeVec
)

// Init registers metrics with the default registry. db may be nil.
func Init(db *sql.DB, logger *log.Logger) {
	InitWith(prometheus.DefaultRegisterer, db, logger)
}

// InitWith registers metrics with reg. Only the first call has effect.
func InitWith(reg prometheus.Registerer, db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		droppedSamples = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dropped_samples_total",
				Help: "Malformed sensor entries dropped by reason",
			},
			[]string{"reason"},
		)

		recomputeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "recompute_total",
				Help: "Spatial recomputations by product and outcome",
			},
			[]string{"product", "outcome"},
		)
		recomputeLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "recompute_latency_seconds",
				Help:    "Interpolation plus epicenter latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		epicenterFallback = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "epicenter_fallback_total",
				Help: "Epicenter estimates that fell back to the loudest sensor",
			},
		)
		activeSensors = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_sensors",
				Help: "Distinct sensors seen since start",
			},
		)
		fieldCacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "field_cache_lookups_total",
				Help: "Interpolation cache lookups by result",
			},
			[]string{"result"},
		)

		historyQueryTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "history_query_total",
				Help: "Historical queries by kind and result",
			},
			[]string{"kind", "result"},
		)
		historyQueryLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "history_query_latency_seconds",
				Help:    "Historical query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Exports by format and result",
			},
			[]string{"format", "result"},
		)

		liveClients = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "live_clients",
				Help: "Connected live clients by transport",
			},
			[]string{"transport"},
		)

		reg.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			droppedSamples,
			recomputeTotal,
			recomputeLatency,
			epicenterFallback,
			activeSensors,
			fieldCacheLookups,
			historyQueryTotal,
			historyQueryLatency,
			exportTotal,
			liveClients,
		)

		if db != nil {
			registerDBMetrics(reg, db, logger)
		}
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// AddDroppedSamples counts malformed entries.
func AddDroppedSamples(reason string, count int) {
	if count <= 0 {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	if droppedSamples != nil {
		droppedSamples.WithLabelValues(reason).Add(float64(count))
	}
}

// ObserveRecompute records one recomputation.
func ObserveRecompute(fieldOK, epicenterOK, fallback bool, duration time.Duration) {
	if recomputeTotal != nil {
		recomputeTotal.WithLabelValues("field", outcome(fieldOK)).Inc()
		recomputeTotal.WithLabelValues("epicenter", outcome(epicenterOK)).Inc()
	}
	if recomputeLatency != nil {
		recomputeLatency.Observe(duration.Seconds())
	}
	if fallback && epicenterFallback != nil {
		epicenterFallback.Inc()
	}
}

// SetActiveSensors sets the distinct sensor gauge.
func SetActiveSensors(count int) {
	if activeSensors != nil {
		activeSensors.Set(float64(count))
	}
}

// IncFieldCache counts a cache hit or miss.
func IncFieldCache(hit bool) {
	if fieldCacheLookups == nil {
		return
	}
	if hit {
		fieldCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	fieldCacheLookups.WithLabelValues("miss").Inc()
}

// ObserveHistoryQuery records a historical query.
func ObserveHistoryQuery(kind, result string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if historyQueryTotal != nil {
		historyQueryTotal.WithLabelValues(kind, result).Inc()
	}
	if historyQueryLatency != nil {
		historyQueryLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// IncExport counts an export by format and result.
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// AddLiveClients adjusts the connected client gauge.
func AddLiveClients(transport string, delta int) {
	if liveClients != nil {
		liveClients.WithLabelValues(transport).Add(float64(delta))
	}
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "absent"
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
