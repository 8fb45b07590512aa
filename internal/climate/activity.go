package climate

// Tier is the fine-grained suitability of an activity.
type Tier string

const (
	TierIdeal Tier = "ideal"
	TierOkay  Tier = "okay"
	TierAvoid Tier = "avoid"
)

// Coarse is the three-way recommendation shown in the planner list.
type Coarse string

const (
	CoarseRecommended    Coarse = "recommended"
	CoarseCaution        Coarse = "caution"
	CoarseNotRecommended Coarse = "not-recommended"
)

// Coarse maps a tier onto its planner label.
func (t Tier) Coarse() Coarse {
	switch t {
	case TierIdeal:
		return CoarseRecommended
	case TierOkay:
		return CoarseCaution
	default:
		return CoarseNotRecommended
	}
}

// TierStyle is the badge color and text shown next to a tier.
type TierStyle struct {
	Color string `json:"color"`
	Text  string `json:"text"`
}

// Style returns the display attributes for t.
func (t Tier) Style() TierStyle {
	switch t {
	case TierIdeal:
		return TierStyle{Color: "#4CAF50", Text: "Great day for it"}
	case TierOkay:
		return TierStyle{Color: "#FFC107", Text: "Possible with precautions"}
	default:
		return TierStyle{Color: "#FF5252", Text: "Better to skip"}
	}
}

// Activity is a catalog entry.
type Activity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Indoor      bool   `json:"indoor"`
}

// ActivityRecommendation pairs an activity with its computed tier.
type ActivityRecommendation struct {
	Activity
	Tier   Tier      `json:"tier"`
	Coarse Coarse    `json:"recommendation"`
	Style  TierStyle `json:"style"`
}

var catalog = []Activity{
	{ID: "hiking", Name: "Hiking", Description: "Explore scenic trails", Image: "hiking"},
	{ID: "jogging", Name: "Jogging", Description: "Go for a run", Image: "jogging"},
	{ID: "gardening", Name: "Gardening", Description: "Tend to plants", Image: "gardening"},
	{ID: "climbing", Name: "Climbing", Description: "Hit the crag or gym", Image: "climbing"},
	{ID: "fishing", Name: "Fishing", Description: "Cast a line", Image: "fishing"},
	{ID: "cycling", Name: "Cycling", Description: "Ride your favorite route", Image: "cycling"},
	{ID: "picnic", Name: "Picnic", Description: "Relax outdoors", Image: "picnic"},
	{ID: "photography", Name: "Photography", Description: "Capture the day", Image: "photography"},
	{ID: "indoor-climbing", Name: "Indoor Climbing", Description: "Challenge yourself", Image: "climbing", Indoor: true},
}

// Catalog returns a copy of the activity catalog in display order.
func Catalog() []Activity {
	out := make([]Activity, len(catalog))
	copy(out, catalog)
	return out
}

// Recommend rates one activity against an outlook. Indoor activities are
// always ideal. Outdoor activities get the base temperature/precipitation rule
// followed by their activity-specific override.
func Recommend(activity Activity, o Outlook) Tier {
	if activity.Indoor {
		return TierIdeal
	}

	temp := o.Climate.Temp()
	rain := o.Probability(ConditionRain)
	snow := o.Probability(ConditionSnow)
	wind := o.Probability(ConditionWind)

	pleasant := temp >= 55 && temp <= 80
	tolerable := temp >= 40 && temp <= 90

	var tier Tier
	switch {
	case pleasant && rain < 30 && snow < 10 && wind < 30:
		tier = TierIdeal
	case tolerable && rain < 60 && snow < 30:
		tier = TierOkay
	default:
		tier = TierAvoid
	}

	switch activity.ID {
	case "climbing":
		if wind >= 25 || rain >= 40 {
			tier = TierAvoid
		}
	case "gardening":
		// Light rain is fine for the garden.
		if tier == TierAvoid && rain >= 10 && rain <= 40 && snow < 10 && tolerable {
			tier = TierOkay
		}
	case "fishing":
		if tier != TierAvoid && rain >= 10 && rain <= 50 && snow < 20 {
			tier = TierIdeal
		}
	}

	return tier
}

// Plan rates the full catalog against an outlook in one pass.
func Plan(o Outlook) []ActivityRecommendation {
	out := make([]ActivityRecommendation, 0, len(catalog))
	for _, a := range catalog {
		tier := Recommend(a, o)
		out = append(out, ActivityRecommendation{
			Activity: a,
			Tier:     tier,
			Coarse:   tier.Coarse(),
			Style:    tier.Style(),
		})
	}
	return out
}
