package climate

import "fmt"

// ConditionID identifies a classified weather condition.
type ConditionID string

const (
	ConditionRain ConditionID = "rain"
	ConditionSnow ConditionID = "snow"
	ConditionWind ConditionID = "wind"
)

// ConditionEstimate is one condition's severity index plus its display
// attributes.
type ConditionEstimate struct {
	ID          ConditionID `json:"id"`
	Label       string      `json:"label"`
	Probability int         `json:"probability"`
	Icon        string      `json:"icon"`
	Color       string      `json:"color"`
}

// Climate holds the temperature statistics of a sample, computed once and
// shared by every estimate.
type Climate struct {
	MeanF float64 `json:"mean_f"`
	HighF float64 `json:"high_f"`
	LowF  float64 `json:"low_f"`
	Years int     `json:"years"`
}

// Temp returns the mean temperature rounded half up, the value every rule
// engine compares against.
func (c Climate) Temp() int {
	return roundHalfUp(c.MeanF)
}

// Outlook is the classifier output: the shared climate record and the three
// condition estimates in the order rain, snow, wind.
type Outlook struct {
	Climate    Climate             `json:"climate"`
	Conditions []ConditionEstimate `json:"conditions"`
}

// Probability returns the estimate for id, or 0 when absent.
func (o Outlook) Probability(id ConditionID) int {
	for _, c := range o.Conditions {
		if c.ID == id {
			return c.Probability
		}
	}
	return 0
}

type conditionDef struct {
	id       ConditionID
	label    string
	icon     string
	color    string
	quantity Quantity
	values   func(Sample) []float64
}

var conditionDefs = []conditionDef{
	{ConditionRain, "Rain", "rainy", "#4A90E2", QuantityPrecipitation, Sample.Precipitation},
	{ConditionSnow, "Snow", "snow", "#87CEEB", QuantitySnowDepth, Sample.SnowDepths},
	{ConditionWind, "Wind", "leaf", "#32CD32", QuantityWindSpeed, Sample.WindSpeeds},
}

// Classify reduces a sample to the rain, snow and wind severity indexes and
// the shared temperature statistics. Each index is ToPercent(mean, N) where N
// is the number of matched days. The mean covers only the days on which the
// quantity was observed.
//
// An empty sequence for any quantity returns ErrInsufficientData naming it.
func Classify(sample Sample) (Outlook, error) {
	temps, err := Aggregate(sample.Temperatures())
	if err != nil {
		return Outlook{}, fmt.Errorf("%w: no %s observations", ErrInsufficientData, QuantityTemperature)
	}

	out := Outlook{
		Climate: Climate{
			MeanF: temps.Mean,
			HighF: temps.Max,
			LowF:  temps.Min,
			Years: len(sample.Temperatures()),
		},
		Conditions: make([]ConditionEstimate, 0, len(conditionDefs)),
	}

	for _, def := range conditionDefs {
		values := def.values(sample)
		st, err := Aggregate(values)
		if err != nil {
			return Outlook{}, fmt.Errorf("%w: no %s observations", ErrInsufficientData, def.quantity)
		}
		pct, err := ToPercent(st.Mean, sample.Len())
		if err != nil {
			return Outlook{}, fmt.Errorf("%s: %w", def.quantity, err)
		}
		out.Conditions = append(out.Conditions, ConditionEstimate{
			ID:          def.id,
			Label:       def.label,
			Probability: pct,
			Icon:        def.icon,
			Color:       def.color,
		})
	}

	return out, nil
}
