package climate

// Band is the display treatment for a mean temperature.
type Band struct {
	Color string `json:"color"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// TemperatureBand maps a mean °F value onto its display band.
func TemperatureBand(meanF float64) Band {
	switch {
	case meanF >= 75:
		return Band{Color: "#FF6B35", Label: "Sunny", Icon: "sunny"}
	case meanF >= 60:
		return Band{Color: "#FFD23F", Label: "Warm", Icon: "partly-sunny"}
	case meanF >= 40:
		return Band{Color: "#4ECDC4", Label: "Cool", Icon: "cool"}
	default:
		return Band{Color: "#4A90E2", Label: "Cold", Icon: "snow"}
	}
}
