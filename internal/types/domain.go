package types

import (
	"time"
)

// Coordinate bounds accepted by every endpoint that takes a location.
const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0
)

// DateLayout is the wire format for calendar dates (query params, saved queries).
const DateLayout = "2006-01-02"

// Location represents a geographic coordinate with an optional display name.
type Location struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name,omitempty"`
	Timezone    string  `json:"timezone,omitempty"`
}

// ValidCoordinates reports whether lat/lon are within WGS84 bounds.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= MinLat && lat <= MaxLat && lon >= MinLon && lon <= MaxLon
}

// SavedQuery is a user-bookmarked outlook request. Stored newest first.
type SavedQuery struct {
	ID          string    `json:"id" db:"id"`
	Location    string    `json:"location" db:"location"`
	Date        string    `json:"date" db:"query_date"`
	Time        string    `json:"time" db:"query_time"`
	Lat         float64   `json:"lat" db:"lat"`
	Lon         float64   `json:"lon" db:"lon"`
	Conditions  []string  `json:"conditions" db:"conditions"`
	Temperature *float64  `json:"temperature,omitempty" db:"temperature"`
	WeatherIcon string    `json:"weather_icon,omitempty" db:"weather_icon"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// CreateSavedQueryRequest is the request body for POST /v1/saved-queries.
type CreateSavedQueryRequest struct {
	Location    string   `json:"location" validate:"required,max=200"`
	Date        string   `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string   `json:"time" validate:"omitempty,datetime=15:04"`
	Lat         float64  `json:"lat" validate:"latitude"`
	Lon         float64  `json:"lon" validate:"longitude"`
	Conditions  []string `json:"conditions" validate:"max=10,dive,oneof=rain snow wind"`
	Temperature *float64 `json:"temperature,omitempty"`
	WeatherIcon string   `json:"weather_icon,omitempty" validate:"max=50"`
}

// CurrentConditions is a live weather snapshot for a coordinate.
// Units are imperial: °F, inches, mph.
type CurrentConditions struct {
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	Precipitation float64   `json:"precipitation"`
	WindSpeed     float64   `json:"wind_speed"`
	WeatherCode   int       `json:"weather_code"`
	Condition     string    `json:"condition"`
	Icon          string    `json:"icon"`
	ObservedAt    time.Time `json:"observed_at"`
	Timezone      string    `json:"timezone,omitempty"`
}

// PrefetchMessage asks the prefetch worker to warm the history cache for a
// saved query's location.
type PrefetchMessage struct {
	QueryID    string    `json:"query_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Date       string    `json:"date"`
	TraceID    string    `json:"trace_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
