package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"willitrain/internal/types"
)

const openMeteoAPIBase = "https://api.open-meteo.com"

const openMeteoCurrentFields = "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m,weather_code"

// Conditions derived from WMO weather interpretation codes.
const (
	ConditionClear        = "clear"
	ConditionPartlyCloudy = "partly-cloudy"
	ConditionFoggy        = "foggy"
	ConditionRain         = "rain"
	ConditionSnow         = "snow"
	ConditionThunderstorm = "thunderstorm"
	ConditionCloudy       = "cloudy"
)

// OpenMeteoClientConfig holds the configuration for NewOpenMeteoClient.
type OpenMeteoClientConfig struct {
	BaseURL string // defaults to openMeteoAPIBase
	Logger  *slog.Logger
}

type openMeteoCurrent struct {
	Time               string  `json:"time"`
	Temperature2m      float64 `json:"temperature_2m"`
	RelativeHumidity2m float64 `json:"relative_humidity_2m"`
	Precipitation      float64 `json:"precipitation"`
	WindSpeed10m       float64 `json:"wind_speed_10m"`
	WeatherCode        int     `json:"weather_code"`
}

type openMeteoResponse struct {
	Timezone         string            `json:"timezone"`
	UTCOffsetSeconds int               `json:"utc_offset_seconds"`
	Current          *openMeteoCurrent `json:"current"`
}

// OpenMeteoClient implements CurrentConditionsProvider.
type OpenMeteoClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

var _ CurrentConditionsProvider = (*OpenMeteoClient)(nil)

// NewOpenMeteoClient creates a client with its own breaker and a single
// retry; live conditions are optional so the caller keeps a short budget.
func NewOpenMeteoClient(httpClient *http.Client, cfg OpenMeteoClientConfig, opts ...BaseClientOption) *OpenMeteoClient {
	base := NewBaseClient(httpClient, types.ProviderOpenMeteo, RetryPolicy{
		MaxRetries: 1,
		MinWait:    200 * time.Millisecond,
		MaxWait:    1 * time.Second,
	}, opts...)
	return NewOpenMeteoClientWithBase(base, cfg)
}

// NewOpenMeteoClientWithBase uses a pre-configured BaseClient.
func NewOpenMeteoClientWithBase(base *BaseClient, cfg OpenMeteoClientConfig) *OpenMeteoClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openMeteoAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenMeteoClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Current returns the live conditions at lat/lon in imperial units.
func (c *OpenMeteoClient) Current(ctx context.Context, lat, lon float64) (*types.CurrentConditions, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(lat, lon), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build Open-Meteo request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamCurrent, "current conditions provider unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.WarnContext(ctx, "Open-Meteo returned error status",
			"status", resp.StatusCode,
			"body", truncate(string(body), 256),
		)
		return nil, types.NewAppError(types.ErrCodeUpstreamCurrent,
			fmt.Sprintf("current conditions provider returned %d", resp.StatusCode), nil)
	}

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamCurrent, "invalid current conditions response", err)
	}
	if payload.Current == nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamCurrent, "current conditions response has no current block", nil)
	}

	cur := payload.Current
	condition := ConditionForWMOCode(cur.WeatherCode)
	return &types.CurrentConditions{
		Temperature:   cur.Temperature2m,
		Humidity:      cur.RelativeHumidity2m,
		Precipitation: cur.Precipitation,
		WindSpeed:     cur.WindSpeed10m,
		WeatherCode:   cur.WeatherCode,
		Condition:     condition,
		Icon:          IconForCondition(condition),
		ObservedAt:    parseOpenMeteoTime(cur.Time, payload.UTCOffsetSeconds),
		Timezone:      payload.Timezone,
	}, nil
}

func (c *OpenMeteoClient) buildURL(lat, lon float64) string {
	v := url.Values{}
	v.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	v.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	v.Set("current", openMeteoCurrentFields)
	v.Set("timezone", "auto")
	v.Set("forecast_days", "1")
	v.Set("temperature_unit", "fahrenheit")
	v.Set("wind_speed_unit", "mph")
	v.Set("precipitation_unit", "inch")
	return c.baseURL + "/v1/forecast?" + v.Encode()
}

// ConditionForWMOCode maps a WMO weather interpretation code to a condition.
func ConditionForWMOCode(code int) string {
	switch {
	case code == 0:
		return ConditionClear
	case code >= 1 && code <= 3:
		return ConditionPartlyCloudy
	case code >= 45 && code <= 48:
		return ConditionFoggy
	case code >= 51 && code <= 67:
		return ConditionRain
	case code >= 71 && code <= 77:
		return ConditionSnow
	case code >= 80 && code <= 86:
		return ConditionRain
	case code >= 95 && code <= 99:
		return ConditionThunderstorm
	default:
		return ConditionCloudy
	}
}

// IconForCondition returns the display icon for a condition (or for a
// climate condition id such as "wind").
func IconForCondition(condition string) string {
	switch strings.ToLower(condition) {
	case "rain":
		return "rainy"
	case "snow", "hail":
		return "snow"
	case "wind":
		return "leaf"
	case "thunderstorm":
		return "thunderstorm"
	case "clear":
		return "sunny"
	default:
		return "partly-sunny"
	}
}

// parseOpenMeteoTime reads the local ISO8601 minute timestamp Open-Meteo
// returns with timezone=auto. Unparseable input yields the zero time.
func parseOpenMeteoTime(s string, offsetSeconds int) time.Time {
	loc := time.FixedZone("", offsetSeconds)
	t, err := time.ParseInLocation("2006-01-02T15:04", s, loc)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
