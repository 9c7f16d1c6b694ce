package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(reg prometheus.Registerer, db *sql.DB, logger *log.Logger) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "stored_readings",
			Help: "Raw readings in the historical store",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM noise_readings")
		},
	))

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "stored_sensors",
			Help: "Distinct sensors in the historical store",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(DISTINCT sensor_id) FROM noise_readings")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
