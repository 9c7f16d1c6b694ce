package statistic

import (
	"sort"
	"time"
)

// Observation is one raw replicate value.
type Observation struct {
	SensorID  string
	Replicate string
	Value     float64
	At        time.Time
}

// Bucket is the windowed value of one logical sensor.
type Bucket struct {
	SensorID string    `json:"sensor_id"`
	Start    time.Time `json:"time"`
	Value    float64   `json:"value"`
	// Replicates is the number of replicates averaged into Value.
	Replicates int `json:"replicates"`
	// Samples is the number of raw observations behind Value.
	Samples int `json:"samples"`
}

type replicateKey struct {
	sensorID  string
	replicate string
	start     time.Time
}

type bucketKey struct {
	sensorID string
	start    time.Time
}

type accumulator struct {
	sum float64
	n   int
}

func (a *accumulator) add(v float64) {
	a.sum += v
	a.n++
}

func (a accumulator) mean() float64 {
	return a.sum / float64(a.n)
}

// AverageByWindow buckets observations per logical sensor. Each replicate is
// first averaged within the bucket, then replicate means are averaged, so a
// replicate reporting more often does not outweigh the others. Output is
// ordered by bucket start then sensor id.
func AverageByWindow(observations []Observation, window time.Duration) ([]Bucket, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}

	perReplicate := make(map[replicateKey]*accumulator)
	for _, obs := range observations {
		key := replicateKey{obs.SensorID, obs.Replicate, BucketStart(obs.At, window)}
		acc := perReplicate[key]
		if acc == nil {
			acc = &accumulator{}
			perReplicate[key] = acc
		}
		acc.add(obs.Value)
	}

	perBucket := make(map[bucketKey]*accumulator)
	samples := make(map[bucketKey]int)
	for key, acc := range perReplicate {
		bk := bucketKey{key.sensorID, key.start}
		b := perBucket[bk]
		if b == nil {
			b = &accumulator{}
			perBucket[bk] = b
		}
		b.add(acc.mean())
		samples[bk] += acc.n
	}

	out := make([]Bucket, 0, len(perBucket))
	for key, acc := range perBucket {
		out = append(out, Bucket{
			SensorID:   key.sensorID,
			Start:      key.start,
			Value:      acc.mean(),
			Replicates: acc.n,
			Samples:    samples[key],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].SensorID < out[j].SensorID
	})
	return out, nil
}
