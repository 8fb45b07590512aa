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

	"willitrain/internal/climate"
	"willitrain/internal/history"
	"willitrain/internal/types"
)

const nasaPowerAPIBase = "https://power.larc.nasa.gov"

// NASA POWER parameter names for the four series the engine consumes.
const (
	powerParamTemperature   = "T2M"
	powerParamPrecipitation = "PRECTOTCORR"
	powerParamWindSpeed     = "WS2M"
	powerParamSnowDepth     = "SNODP"
)

var powerParameters = strings.Join([]string{
	powerParamTemperature,
	powerParamWindSpeed,
	powerParamPrecipitation,
	powerParamSnowDepth,
}, ",")

// maxPowerBodySize bounds the decoded body. Five years of four daily
// parameters is well under 1 MB.
const maxPowerBodySize = 8 << 20

// NASAPowerClientConfig holds the configuration for NewNASAPowerClient.
type NASAPowerClientConfig struct {
	BaseURL string // defaults to nasaPowerAPIBase
	Logger  *slog.Logger
	Clock   types.Clock
}

// powerResponse is the subset of the daily point GeoJSON we read.
type powerResponse struct {
	Geometry struct {
		Coordinates []float64 `json:"coordinates"` // lon, lat, elevation
	} `json:"geometry"`
	Properties struct {
		Parameter map[string]climate.TimeSeries `json:"parameter"`
	} `json:"properties"`
	Header struct {
		TimeStandard string `json:"time_standard"`
	} `json:"header"`
	Parameters map[string]struct {
		Units string `json:"units"`
	} `json:"parameters"`
	Messages []string `json:"messages"`
}

// NASAPowerClient implements history.Provider against the NASA POWER daily
// point API, requesting imperial units.
type NASAPowerClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
	clock   types.Clock
}

var _ history.Provider = (*NASAPowerClient)(nil)

// NewNASAPowerClient creates a client with its own breaker. The httpClient
// timeout should cover a multi-year request (20s is typical).
func NewNASAPowerClient(httpClient *http.Client, cfg NASAPowerClientConfig, opts ...BaseClientOption) *NASAPowerClient {
	base := NewBaseClient(httpClient, types.ProviderNASAPower, RetryPolicy{
		MaxRetries: 2,
		MinWait:    500 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}, opts...)
	return NewNASAPowerClientWithBase(base, cfg)
}

// NewNASAPowerClientWithBase uses a pre-configured BaseClient.
func NewNASAPowerClientWithBase(base *BaseClient, cfg NASAPowerClientConfig) *NASAPowerClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = nasaPowerAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}

	return &NASAPowerClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
		clock:   clock,
	}
}

// Fetch requests the daily series for q. Transport failures, non-2xx statuses
// and an open breaker return upstream_history_unavailable; a body missing a
// required parameter returns upstream_malformed_series.
func (c *NASAPowerClient) Fetch(ctx context.Context, q history.Query) (*history.Response, error) {
	q = q.WithDefaults()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(q), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build NASA POWER request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamHistory, "historical data provider unavailable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPowerBodySize))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamHistory, "failed to read NASA POWER response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WarnContext(ctx, "NASA POWER returned error status",
			"status", resp.StatusCode,
			"lat", q.Lat,
			"lon", q.Lon,
			"body", truncate(string(body), 256),
		)
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamHistory,
			fmt.Sprintf("historical data provider returned %d", resp.StatusCode), nil,
			map[string]any{"provider_status": resp.StatusCode},
		)
	}

	var payload powerResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMalformedSeries, "historical data response is not valid JSON", err)
	}

	series, err := payload.series()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMalformedSeries, err.Error(), err)
	}
	for _, msg := range payload.Messages {
		c.logger.DebugContext(ctx, "NASA POWER message", "message", msg)
	}

	return &history.Response{Series: series, Meta: payload.meta(q, c.clock.Now())}, nil
}

func (c *NASAPowerClient) buildURL(q history.Query) string {
	v := url.Values{}
	v.Set("parameters", powerParameters)
	v.Set("start", q.Start)
	v.Set("end", q.End)
	v.Set("latitude", strconv.FormatFloat(q.Lat, 'f', 4, 64))
	v.Set("longitude", strconv.FormatFloat(q.Lon, 'f', 4, 64))
	v.Set("format", "JSON")
	v.Set("community", "RE")
	v.Set("units", "imperial")
	return c.baseURL + "/api/temporal/daily/point?" + v.Encode()
}

func (p *powerResponse) series() (climate.Series, error) {
	params := p.Properties.Parameter
	var missing []string
	pick := func(name string) climate.TimeSeries {
		ts, ok := params[name]
		if !ok || ts == nil {
			missing = append(missing, name)
		}
		return ts
	}

	s := climate.Series{
		Temperature:   pick(powerParamTemperature),
		Precipitation: pick(powerParamPrecipitation),
		WindSpeed:     pick(powerParamWindSpeed),
		SnowDepth:     pick(powerParamSnowDepth),
	}
	if len(missing) > 0 {
		return climate.Series{}, fmt.Errorf("%w: response lacks parameter(s) %s",
			climate.ErrMalformedSeries, strings.Join(missing, ", "))
	}
	return s, nil
}

func (p *powerResponse) meta(q history.Query, now time.Time) history.Meta {
	m := history.Meta{
		Source:       types.ProviderNASAPower,
		TimeStandard: p.Header.TimeStandard,
		Lat:          q.Lat,
		Lon:          q.Lon,
		FetchedAt:    now,
	}

	if coords := p.Geometry.Coordinates; len(coords) >= 2 {
		m.Lon, m.Lat = coords[0], coords[1]
		if len(coords) >= 3 {
			elev := coords[2]
			m.Elevation = &elev
		}
	}

	if len(p.Parameters) > 0 {
		m.Units = make(map[string]string, len(p.Parameters))
		for name, info := range p.Parameters {
			m.Units[name] = info.Units
		}
	}
	return m
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
