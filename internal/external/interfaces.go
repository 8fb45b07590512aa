package external

import (
	"context"

	"willitrain/internal/types"
)

// CurrentConditionsProvider returns a live weather snapshot for a coordinate.
// Failures are upstream_current_conditions_unavailable AppErrors; callers
// treat them as a degraded, not failed, outlook.
type CurrentConditionsProvider interface {
	Current(ctx context.Context, lat, lon float64) (*types.CurrentConditions, error)
}
