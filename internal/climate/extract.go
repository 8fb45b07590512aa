package climate

import (
	"fmt"
	"sort"
	"time"
)

// Observation is one matched historical day. A nil field means that quantity
// had no value for the date.
type Observation struct {
	Date          string   `json:"date"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Precipitation *float64 `json:"precipitation,omitempty"`
	WindSpeed     *float64 `json:"wind_speed,omitempty"`
	SnowDepth     *float64 `json:"snow_depth,omitempty"`
}

// Sample holds the observations for every year that has the target month and
// day, in ascending date order.
type Sample struct {
	MMDD         string               `json:"mmdd"`
	Observations []Observation        `json:"observations"`
	Skipped      []*MalformedKeyError `json:"-"`
}

// Len returns the number of matched days.
func (s Sample) Len() int { return len(s.Observations) }

// Dates returns the matched date keys in ascending order.
func (s Sample) Dates() []string {
	out := make([]string, len(s.Observations))
	for i, o := range s.Observations {
		out[i] = o.Date
	}
	return out
}

// Temperatures returns the temperature values present in the sample.
func (s Sample) Temperatures() []float64 {
	return s.values(func(o Observation) *float64 { return o.Temperature })
}

// Precipitation returns the precipitation values present in the sample.
func (s Sample) Precipitation() []float64 {
	return s.values(func(o Observation) *float64 { return o.Precipitation })
}

// WindSpeeds returns the wind speed values present in the sample.
func (s Sample) WindSpeeds() []float64 {
	return s.values(func(o Observation) *float64 { return o.WindSpeed })
}

// SnowDepths returns the snow depth values present in the sample.
func (s Sample) SnowDepths() []float64 {
	return s.values(func(o Observation) *float64 { return o.SnowDepth })
}

func (s Sample) values(pick func(Observation) *float64) []float64 {
	out := make([]float64, 0, len(s.Observations))
	for _, o := range s.Observations {
		if v := pick(o); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// Extract selects, from every series, the entries whose month and day equal
// target's. The year of target is ignored.
func Extract(series Series, target time.Time) (Sample, error) {
	return ExtractMMDD(series, target.Format("0102"))
}

// ExtractMMDD is Extract for a raw "MMDD" day. Malformed keys are skipped and
// recorded in Sample.Skipped. A day with no matches in any series returns
// ErrInsufficientData together with the (empty) sample.
func ExtractMMDD(series Series, mmdd string) (Sample, error) {
	if !validMMDD(mmdd) {
		return Sample{}, fmt.Errorf("%w: %q", ErrInvalidTarget, mmdd)
	}

	sample := Sample{MMDD: mmdd}
	byDate := make(map[string]*Observation)

	collect := func(q Quantity, ts TimeSeries, set func(*Observation, *float64)) {
		for key, v := range ts {
			if _, err := ParseDateKey(key); err != nil {
				sample.Skipped = append(sample.Skipped, &MalformedKeyError{Quantity: q, Key: key})
				continue
			}
			if key[4:] != mmdd || missing(v) {
				continue
			}
			obs, ok := byDate[key]
			if !ok {
				obs = &Observation{Date: key}
				byDate[key] = obs
			}
			val := v
			set(obs, &val)
		}
	}

	collect(QuantityTemperature, series.Temperature, func(o *Observation, v *float64) { o.Temperature = v })
	collect(QuantityPrecipitation, series.Precipitation, func(o *Observation, v *float64) { o.Precipitation = v })
	collect(QuantityWindSpeed, series.WindSpeed, func(o *Observation, v *float64) { o.WindSpeed = v })
	collect(QuantitySnowDepth, series.SnowDepth, func(o *Observation, v *float64) { o.SnowDepth = v })

	keys := make([]string, 0, len(byDate))
	for k := range byDate {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sample.Observations = make([]Observation, 0, len(keys))
	for _, k := range keys {
		sample.Observations = append(sample.Observations, *byDate[k])
	}

	// Map iteration order is random; keep Skipped stable across runs.
	sort.Slice(sample.Skipped, func(i, j int) bool {
		a, b := sample.Skipped[i], sample.Skipped[j]
		if a.Quantity != b.Quantity {
			return a.Quantity < b.Quantity
		}
		return a.Key < b.Key
	})

	if len(sample.Observations) == 0 {
		return sample, fmt.Errorf("%w: no observations for %s-%s", ErrInsufficientData, mmdd[:2], mmdd[2:])
	}
	return sample, nil
}

// validMMDD accepts any month/day that exists in a leap year, so 0229 is valid.
func validMMDD(mmdd string) bool {
	if len(mmdd) != 4 || !allDigits(mmdd) {
		return false
	}
	_, err := time.Parse(dateKeyLayout, "2000"+mmdd)
	return err == nil
}
