// Package climate implements the historical likelihood engine. It pulls the
// observations matching one calendar day out of multi-year daily series,
// reduces them to rain/snow/wind severity indexes plus temperature statistics,
// and runs the activity and gear rule engines over the result.
//
// Everything in this package is a pure function over in-memory values: no I/O,
// no clock, no shared state. Callers fetch the series (see internal/history)
// and decide how to present failures.
package climate

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Quantity names one of the four observed variables.
type Quantity string

const (
	QuantityTemperature   Quantity = "temperature"
	QuantityPrecipitation Quantity = "precipitation"
	QuantityWindSpeed     Quantity = "wind_speed"
	QuantitySnowDepth     Quantity = "snow_depth"
)

// dateKeyLayout is the layout of TimeSeries keys (YYYYMMDD).
const dateKeyLayout = "20060102"

// FillValue is the marker NASA POWER uses for days with no observation.
const FillValue = -999.0

var (
	// ErrInsufficientData is returned when a sample (or one quantity of it) is
	// empty. It is never coerced into zero-valued statistics.
	ErrInsufficientData = errors.New("insufficient historical data")

	// ErrMalformedSeries marks a series key that is not an 8-digit calendar date.
	ErrMalformedSeries = errors.New("malformed series key")

	// ErrInvalidTarget is returned for a target day that is not a valid MMDD.
	ErrInvalidTarget = errors.New("invalid target day")
)

// TimeSeries maps a YYYYMMDD date key to one daily observation.
// Temperature is in °F, wind in mph, precipitation and snow depth in inches.
type TimeSeries map[string]float64

// Series groups the four daily series returned by the historical provider.
type Series struct {
	Temperature   TimeSeries `json:"temperature"`
	Precipitation TimeSeries `json:"precipitation"`
	WindSpeed     TimeSeries `json:"wind_speed"`
	SnowDepth     TimeSeries `json:"snow_depth"`
}

// Len returns the number of entries in the largest of the four series.
func (s Series) Len() int {
	n := len(s.Temperature)
	for _, ts := range []TimeSeries{s.Precipitation, s.WindSpeed, s.SnowDepth} {
		if len(ts) > n {
			n = len(ts)
		}
	}
	return n
}

// MalformedKeyError describes one skipped series entry.
type MalformedKeyError struct {
	Quantity Quantity
	Key      string
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("%s key %q is not a YYYYMMDD date", e.Quantity, e.Key)
}

// Unwrap makes errors.Is(err, ErrMalformedSeries) hold.
func (e *MalformedKeyError) Unwrap() error {
	return ErrMalformedSeries
}

// ParseDateKey parses a YYYYMMDD key. Keys that are not exactly eight digits or
// do not name a real calendar date fail with ErrMalformedSeries.
func ParseDateKey(key string) (time.Time, error) {
	if len(key) != 8 || !allDigits(key) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedSeries, key)
	}
	t, err := time.Parse(dateKeyLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedSeries, key)
	}
	return t, nil
}

// DateKey formats t as a YYYYMMDD key.
func DateKey(t time.Time) string {
	return t.Format(dateKeyLayout)
}

// missing reports whether v carries no usable observation.
func missing(v float64) bool {
	return v == FillValue || math.IsNaN(v) || math.IsInf(v, 0)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
