// Package stats provides the statistical summary used as the anomaly
// baseline: mean, population standard deviation, min/max, and quartiles.
//
// Quartiles use the nearest-rank method (index floor(n*0.25) and
// floor(n*0.75) on the value-sorted sequence, no interpolation), matching
// the fencing rules the IQR detector applies.
package stats

import (
	"errors"
	"math"
	"sort"
)

// ErrInsufficientData is returned when a summary is requested over fewer
// than two values. A single point has a degenerate stddev of zero and any
// Z-score over it would be undefined.
var ErrInsufficientData = errors.New("stats: need at least 2 values")

// Summary holds the statistical measures of one metric projection.
type Summary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
	Count  int     `json:"count"`
}

// IQR returns the interquartile range Q3 - Q1.
func (s Summary) IQR() float64 {
	return s.Q3 - s.Q1
}

// Compute calculates the summary of values. Variance is population variance
// (divide by n, not n-1).
func Compute(values []float64) (Summary, error) {
	n := len(values)
	if n < 2 {
		return Summary{}, ErrInsufficientData
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(n)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	return Summary{
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		Min:    sorted[0],
		Max:    sorted[n-1],
		Q1:     sorted[int(math.Floor(float64(n)*0.25))],
		Q3:     sorted[int(math.Floor(float64(n)*0.75))],
		Count:  n,
	}, nil
}
