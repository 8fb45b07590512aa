// Package history supplies multi-year daily observation series for a
// coordinate, either straight from the provider or through the S3-backed
// cache in cache.go.
package history

import (
	"context"
	"fmt"
	"time"

	"willitrain/internal/climate"
)

// Default request window, matching the ranges the NASA POWER daily product
// serves with complete coverage.
const (
	DefaultStart = "20200101"
	DefaultEnd   = "20250101"
)

// Query identifies one provider request.
type Query struct {
	Lat   float64
	Lon   float64
	Start string // YYYYMMDD
	End   string // YYYYMMDD
}

// WithDefaults fills an empty Start/End with the default window.
func (q Query) WithDefaults() Query {
	if q.Start == "" {
		q.Start = DefaultStart
	}
	if q.End == "" {
		q.End = DefaultEnd
	}
	return q
}

// Key is the cache key for q. Coordinates are rounded to four decimals
// (about 11 m), well under the provider's grid spacing.
func (q Query) Key() string {
	q = q.WithDefaults()
	return fmt.Sprintf("daily/v1/%.4f_%.4f/%s-%s.json.zst", q.Lat, q.Lon, q.Start, q.End)
}

// Meta describes a provider response.
type Meta struct {
	Source       string            `json:"source"`
	Units        map[string]string `json:"units,omitempty"`
	TimeStandard string            `json:"time_standard,omitempty"`
	Lat          float64           `json:"lat"`
	Lon          float64           `json:"lon"`
	Elevation    *float64          `json:"elevation,omitempty"`
	FetchedAt    time.Time         `json:"fetched_at"`
}

// Response is a decoded provider payload.
type Response struct {
	Series climate.Series `json:"series"`
	Meta   Meta           `json:"meta"`
}

// Provider fetches the observation series for q.
type Provider interface {
	Fetch(ctx context.Context, q Query) (*Response, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, q Query) (*Response, error)

func (f ProviderFunc) Fetch(ctx context.Context, q Query) (*Response, error) {
	return f(ctx, q)
}
