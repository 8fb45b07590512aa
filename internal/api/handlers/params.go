// Package handlers contains the HTTP handler implementations for the
// WillItRain API. Each handler depends on a locally defined service interface
// and mounts its routes through RegisterRoutes.
package handlers

import (
	"net/http"
	"strconv"

	"willitrain/internal/types"
)

// parseCoordinates reads the required lat and lon query parameters.
func parseCoordinates(r *http.Request) (lat, lon float64, err error) {
	q := r.URL.Query()

	latStr := q.Get("lat")
	if latStr == "" {
		return 0, 0, types.NewAppError(types.ErrCodeValidationMissingField, "lat query parameter is required", nil)
	}
	lat, err = strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, types.NewAppError(types.ErrCodeValidationInvalidLat, "lat must be a valid number", nil)
	}
	if lat < types.MinLat || lat > types.MaxLat {
		return 0, 0, types.NewAppError(types.ErrCodeValidationInvalidLat, "lat must be between -90 and 90", nil)
	}

	lonStr := q.Get("lon")
	if lonStr == "" {
		return 0, 0, types.NewAppError(types.ErrCodeValidationMissingField, "lon query parameter is required", nil)
	}
	lon, err = strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, types.NewAppError(types.ErrCodeValidationInvalidLon, "lon must be a valid number", nil)
	}
	if lon < types.MinLon || lon > types.MaxLon {
		return 0, 0, types.NewAppError(types.ErrCodeValidationInvalidLon, "lon must be between -180 and 180", nil)
	}

	return lat, lon, nil
}
