package statistic

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MaxSamplePoints caps the points returned alongside a summary.
const MaxSamplePoints = 100

// Summary describes one sensor's windowed values.
type Summary struct {
	SensorID     string   `json:"sensor_id"`
	Count        int      `json:"count"`
	Mean         float64  `json:"mean"`
	Min          float64  `json:"min"`
	Max          float64  `json:"max"`
	Std          float64  `json:"std"`
	Window       string   `json:"window"`
	Hours        int      `json:"hours"`
	SamplePoints []Bucket `json:"data_points"`
}

// Summarize computes count, mean, min, max and population standard deviation
// over the buckets of sensorID. It returns ErrNoData when there are none.
func Summarize(sensorID string, buckets []Bucket) (Summary, error) {
	values := make([]float64, 0, len(buckets))
	points := make([]Bucket, 0, min(len(buckets), MaxSamplePoints))
	for _, b := range buckets {
		if b.SensorID != sensorID {
			continue
		}
		values = append(values, b.Value)
		if len(points) < MaxSamplePoints {
			points = append(points, b)
		}
	}
	if len(values) == 0 {
		return Summary{}, ErrNoData
	}

	mean, std := stat.PopMeanStdDev(values, nil)
	return Summary{
		SensorID:     sensorID,
		Count:        len(values),
		Mean:         mean,
		Min:          floats.Min(values),
		Max:          floats.Max(values),
		Std:          std,
		SamplePoints: points,
	}, nil
}
