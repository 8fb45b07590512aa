// Package geo resolves coordinate-dependent facts such as the local IANA
// timezone, used to decide which calendar day "today" is at a location.
package geo

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ringsaturn/tzf"

	"willitrain/internal/types"
)

// ErrNoTimezone is returned when the finder has no zone for a coordinate.
var ErrNoTimezone = errors.New("geo: no timezone for coordinate")

// Finder is the lookup surface of tzf.F. Note the lon, lat argument order.
type Finder interface {
	GetTimezoneName(lng float64, lat float64) string
}

// TimezoneResolver maps coordinates to IANA zones and caches loaded
// *time.Location values by name. Safe for concurrent use.
type TimezoneResolver struct {
	finder    Finder
	clock     types.Clock
	locations sync.Map // zone name -> *time.Location
}

// NewTimezoneResolver wraps finder. Build the finder once per process; the
// default tzf finder holds its polygon index in memory.
func NewTimezoneResolver(finder Finder, clock types.Clock) *TimezoneResolver {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &TimezoneResolver{finder: finder, clock: clock}
}

// NewDefaultTimezoneResolver builds the resolver on tzf's default finder.
func NewDefaultTimezoneResolver() (*TimezoneResolver, error) {
	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize timezone finder: %w", err)
	}
	return NewTimezoneResolver(finder, nil), nil
}

// Timezone returns the IANA zone name (e.g. "America/Denver") at lat/lon.
func (r *TimezoneResolver) Timezone(lat, lon float64) (string, error) {
	name := r.finder.GetTimezoneName(lon, lat)
	if name == "" {
		return "", fmt.Errorf("%w: lat=%f, lon=%f", ErrNoTimezone, lat, lon)
	}
	return name, nil
}

// Location returns the loaded zone at lat/lon.
func (r *TimezoneResolver) Location(lat, lon float64) (*time.Location, error) {
	name, err := r.Timezone(lat, lon)
	if err != nil {
		return nil, err
	}
	if loc, ok := r.locations.Load(name); ok {
		return loc.(*time.Location), nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("geo: load zone %s: %w", name, err)
	}
	r.locations.Store(name, loc)
	return loc, nil
}

// Today returns the current calendar date at lat/lon as YYYY-MM-DD, falling
// back to UTC when the zone cannot be resolved. The returned zone name is
// empty in that case.
func (r *TimezoneResolver) Today(lat, lon float64) (date string, zone string) {
	now := r.clock.Now()
	loc, err := r.Location(lat, lon)
	if err != nil {
		return now.UTC().Format(types.DateLayout), ""
	}
	return now.In(loc).Format(types.DateLayout), loc.String()
}
