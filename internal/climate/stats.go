package climate

import (
	"fmt"
	"math"
)

// Stats is the mean/min/max of one numeric sequence.
type Stats struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Aggregate reduces values to their arithmetic mean and extrema.
// An empty input returns ErrInsufficientData.
func Aggregate(values []float64) (Stats, error) {
	if len(values) == 0 {
		return Stats{}, ErrInsufficientData
	}

	st := Stats{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		sum += v
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
	}
	st.Mean = sum / float64(len(values))
	return st, nil
}

// ToPercent turns an aggregate magnitude into a 0-100 severity index by
// treating it as a count out of sampleSize: 100*magnitude/sampleSize, clamped
// to [0,100] and rounded half up. This is a heuristic index, not a frequency.
//
// sampleSize <= 0 or a non-finite magnitude returns ErrInsufficientData.
func ToPercent(magnitude float64, sampleSize int) (int, error) {
	if sampleSize <= 0 {
		return 0, fmt.Errorf("%w: sample size %d", ErrInsufficientData, sampleSize)
	}
	if math.IsNaN(magnitude) || math.IsInf(magnitude, 0) {
		return 0, fmt.Errorf("%w: non-finite magnitude", ErrInsufficientData)
	}

	raw := 100 * magnitude / float64(sampleSize)
	raw = math.Max(0, math.Min(100, raw))
	return roundHalfUp(raw), nil
}

// roundHalfUp rounds x to the nearest integer with .5 going toward +Inf.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
