package climate

// ClothingItem is one gear suggestion. Essential items are required rather
// than optional.
type ClothingItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Essential   bool   `json:"essential"`
}

var (
	coldGear = []ClothingItem{
		{ID: "base-thermal", Name: "Thermal base layer", Description: "Moisture-wicking top and bottoms", Icon: "thermometer", Essential: true},
		{ID: "insulated-jacket", Name: "Insulated jacket", Description: "Down or synthetic insulation", Icon: "snow", Essential: true},
		{ID: "beanie-gloves", Name: "Beanie & gloves", Description: "Keep extremities warm", Icon: "snow"},
	}
	coolGear = []ClothingItem{
		{ID: "midlayer", Name: "Light jacket/hoodie", Description: "Fleece or softshell", Icon: "shirt", Essential: true},
		{ID: "long-pants", Name: "Long pants", Description: "Comfortable, breathable fabric", Icon: "walk"},
	}
	mildGear = []ClothingItem{
		{ID: "tee", Name: "T-shirt", Description: "Breathable top", Icon: "shirt", Essential: true},
		{ID: "option-layer", Name: "Light long-sleeve (optional)", Description: "For shade or breeze", Icon: "shirt"},
	}
	hotGear = []ClothingItem{
		{ID: "sun-top", Name: "Breathable top", Description: "Lightweight, sweat-wicking", Icon: "sunny", Essential: true},
		{ID: "shorts", Name: "Shorts", Description: "Stay cool and mobile", Icon: "walk"},
		{ID: "sun-protection", Name: "Hat & sunscreen", Description: "Protect from strong sun", Icon: "sunny"},
	}
	rainGear = []ClothingItem{
		{ID: "rain-jacket", Name: "Rain jacket", Description: "Waterproof (e.g., Gore-Tex)", Icon: "rainy", Essential: true},
		{ID: "waterproof-footwear", Name: "Waterproof footwear", Description: "Keep feet dry", Icon: "umbrella"},
	}
	snowGear = []ClothingItem{
		{ID: "heavy-coat", Name: "Heavy coat", Description: "Insulated & wind-resistant", Icon: "snow", Essential: true},
		{ID: "insulated-boots", Name: "Insulated boots", Description: "Traction for snow/ice", Icon: "snow"},
	}
)

const (
	gearRainThreshold = 40
	gearSnowThreshold = 30
)

// RecommendGear returns the clothing list for an outlook: exactly one
// temperature band, then rain gear, then snow gear.
func RecommendGear(o Outlook) []ClothingItem {
	temp := o.Climate.Temp()

	var band []ClothingItem
	switch {
	case temp < 40:
		band = coldGear
	case temp < 60:
		band = coolGear
	case temp <= 75:
		band = mildGear
	default:
		band = hotGear
	}

	items := make([]ClothingItem, 0, len(band)+len(rainGear)+len(snowGear))
	items = append(items, band...)
	if o.Probability(ConditionRain) >= gearRainThreshold {
		items = append(items, rainGear...)
	}
	if o.Probability(ConditionSnow) >= gearSnowThreshold {
		items = append(items, snowGear...)
	}
	return items
}
