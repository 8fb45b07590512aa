// Package external is the boundary between the outlook engine and the weather
// data vendors (NASA POWER for history, Open-Meteo for live conditions). Every
// outbound call goes through BaseClient, which applies circuit breaking,
// retries with backoff, trace propagation and error mapping.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"willitrain/internal/types"
)

const userAgent = "WillItRain/1.0"

// Call results reported to a CallRecorder.
const (
	ResultSuccess     = "success"
	ResultClientError = "client_error"
	ResultFailure     = "failure"
	ResultBreakerOpen = "breaker_open"
)

// RetryPolicy configures the retry behavior for the BaseClient.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy suits the weather vendors: a couple of quick retries
// inside a request budget of a few seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    250 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// CallRecorder receives one observation per Do call, after retries.
type CallRecorder interface {
	RecordProviderCall(provider, result string, d time.Duration)
}

// BaseClient wraps an *http.Client and a circuit breaker. Vendor clients hold
// one each so a failing vendor trips only its own breaker.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	provider    string
	retryPolicy RetryPolicy
	userAgent   string
	recorder    CallRecorder
	sleepFn     func(ctx context.Context, d time.Duration) error
}

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc overrides the wait between retries. Tests use it to skip
// real delays.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// WithCallRecorder reports call outcomes and latency to r.
func WithCallRecorder(r CallRecorder) BaseClientOption {
	return func(c *BaseClient) {
		c.recorder = r
	}
}

// WithUserAgent overrides the default User-Agent.
func WithUserAgent(ua string) BaseClientOption {
	return func(c *BaseClient) {
		c.userAgent = ua
	}
}

// NewBaseClient creates a BaseClient whose breaker is named after provider.
// The breaker opens after more than five consecutive failures and probes
// again after 30s.
func NewBaseClient(
	httpClient *http.Client,
	provider string,
	retryPolicy RetryPolicy,
	opts ...BaseClientOption,
) *BaseClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return NewBaseClientWithBreaker(httpClient, cb, provider, retryPolicy, opts...)
}

// NewBaseClientWithBreaker uses a caller-provided breaker.
func NewBaseClientWithBreaker(
	httpClient *http.Client,
	breaker *gobreaker.CircuitBreaker[*http.Response],
	provider string,
	retryPolicy RetryPolicy,
	opts ...BaseClientOption,
) *BaseClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	bc := &BaseClient{
		client:      httpClient,
		breaker:     breaker,
		provider:    provider,
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		sleepFn:     sleepCtx,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Provider returns the name used for the breaker and metrics.
func (c *BaseClient) Provider() string {
	return c.provider
}

// Do executes req with:
//  1. X-B3-TraceId from the request ID in context
//  2. User-Agent
//  3. circuit breaking
//  4. retry on 429/5xx, honoring Retry-After, aborting when ctx ends
//  5. error mapping to types.AppError
//
// Any response other than 429/5xx is returned as-is and the caller closes the
// body. Exhausted retries, an open breaker or a transport failure return an
// upstream AppError.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.do(req)
	c.record(resp, err, time.Since(start))
	return resp, err
}

func (c *BaseClient) do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if traceID := types.GetRequestID(ctx); traceID != "" {
		req.Header.Set("X-B3-TraceId", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// Snapshot the body so it can be replayed on retries.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to read request body for retry support", err)
		}
		req.Body.Close()
	}

	var lastResp *http.Response
	var lastErr error

	maxAttempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("%s returned %d", c.provider, r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < maxAttempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		if isBreakerRejection(err) || ctx.Err() != nil {
			break
		}

		if attempt < maxAttempts-1 {
			if sleepErr := c.sleepFn(ctx, c.computeBackoff(attempt, resp)); sleepErr != nil {
				lastErr = sleepErr
				break
			}
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

func (c *BaseClient) record(resp *http.Response, err error, d time.Duration) {
	if c.recorder == nil {
		return
	}

	result := ResultSuccess
	switch {
	case err != nil && isBreakerRejection(err):
		result = ResultBreakerOpen
	case err != nil:
		result = ResultFailure
	case resp != nil && resp.StatusCode >= 400:
		result = ResultClientError
	}
	c.recorder.RecordProviderCall(c.provider, result, d)
}

// computeBackoff honors Retry-After (seconds or HTTP-date) when present,
// otherwise returns exponential backoff with jitter in [MinWait, MaxWait].
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait)
			}
			if t, err := http.ParseTime(retryAfter); err == nil {
				wait := time.Until(t)
				if wait <= 0 {
					return c.retryPolicy.MinWait
				}
				return min(wait, c.retryPolicy.MaxWait)
			}
		}
	}

	base := min(float64(c.retryPolicy.MinWait)*math.Pow(2, float64(attempt)), float64(c.retryPolicy.MaxWait))
	minWait := float64(c.retryPolicy.MinWait)
	if base <= minWait {
		return c.retryPolicy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

// mapError translates the final failure into an upstream AppError. Vendor
// clients may re-wrap it with a vendor-specific code.
func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	if isBreakerRejection(err) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s circuit breaker is open", c.provider), err)
	}

	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(types.ErrCodeUpstreamRateLimited,
				fmt.Sprintf("%s rate limit exceeded", c.provider), err)
		case resp.StatusCode >= 500:
			return types.NewAppError(types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("%s returned %d after retries", c.provider, resp.StatusCode), err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s request timed out", c.provider), err)
	}

	return types.NewAppError(types.ErrCodeUpstreamUnavailable,
		fmt.Sprintf("%s request failed", c.provider), err)
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
