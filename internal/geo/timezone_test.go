package geo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"willitrain/internal/types"
)

type stubFinder map[[2]float64]string

func (s stubFinder) GetTimezoneName(lng, lat float64) string {
	return s[[2]float64{lng, lat}]
}

var finder = stubFinder{
	{-97.74, 30.27}: "America/Chicago",
	{139.69, 35.68}: "Asia/Tokyo",
	{10.0, 10.0}:    "Not/AZone",
}

func TestTimezoneResolver_Timezone(t *testing.T) {
	r := NewTimezoneResolver(finder, nil)

	name, err := r.Timezone(30.27, -97.74)
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", name)

	_, err = r.Timezone(0, 0)
	assert.True(t, errors.Is(err, ErrNoTimezone))
}

func TestTimezoneResolver_LocationCachesZones(t *testing.T) {
	r := NewTimezoneResolver(finder, nil)

	first, err := r.Location(35.68, 139.69)
	require.NoError(t, err)
	second, err := r.Location(35.68, 139.69)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "Asia/Tokyo", first.String())

	_, err = r.Location(10, 10)
	assert.ErrorContains(t, err, "load zone Not/AZone")
}

func TestTimezoneResolver_Today(t *testing.T) {
	// 2026-07-04 03:00 UTC is still July 3rd in Austin and already the 4th in Tokyo.
	clock := types.FixedClock{T: time.Date(2026, 7, 4, 3, 0, 0, 0, time.UTC)}
	r := NewTimezoneResolver(finder, clock)

	date, zone := r.Today(30.27, -97.74)
	assert.Equal(t, "2026-07-03", date)
	assert.Equal(t, "America/Chicago", zone)

	date, zone = r.Today(35.68, 139.69)
	assert.Equal(t, "2026-07-04", date)
	assert.Equal(t, "Asia/Tokyo", zone)

	date, zone = r.Today(0, 0)
	assert.Equal(t, "2026-07-04", date)
	assert.Empty(t, zone)
}
