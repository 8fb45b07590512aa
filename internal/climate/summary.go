package climate

import (
	"fmt"
	"strings"
)

var headlineWords = map[ConditionID]string{
	ConditionRain: "rain",
	ConditionSnow: "snow",
	ConditionWind: "windy",
}

// Summarize renders a one-line outlook, for example:
//
//	Likely rain, 42% chance of rain. Average around 61°F (H:70°F / L:50°F). Plan activities accordingly.
//
// The headline names the condition with the highest nonzero index; rain wins
// ties, then snow. An outlook with every index at 0 reads "Likely clear".
func Summarize(o Outlook) string {
	var primary ConditionEstimate
	for i, c := range o.Conditions {
		if i == 0 || c.Probability > primary.Probability {
			primary = c
		}
	}

	parts := make([]string, 0, 4)
	if word, ok := headlineWords[primary.ID]; ok && primary.Probability > 0 {
		parts = append(parts, "Likely "+word)
	} else {
		parts = append(parts, "Likely clear")
	}

	if p := o.Probability(ConditionRain); p >= 10 {
		parts = append(parts, fmt.Sprintf("%d%% chance of rain", p))
	}
	if p := o.Probability(ConditionSnow); p >= 10 {
		parts = append(parts, fmt.Sprintf("%d%% chance of snow", p))
	}
	if p := o.Probability(ConditionWind); p >= 20 {
		parts = append(parts, fmt.Sprintf("%d%% chance of windy conditions", p))
	}

	return fmt.Sprintf("%s. Average around %d°F (H:%d°F / L:%d°F). Plan activities accordingly.",
		strings.Join(parts, ", "),
		o.Climate.Temp(),
		roundHalfUp(o.Climate.HighF),
		roundHalfUp(o.Climate.LowF),
	)
}
