package external

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"willitrain/internal/types"
)

func noopSleep(context.Context, time.Duration) error { return nil }

var fastPolicy = RetryPolicy{MaxRetries: 2, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond}

func newTestClient(t *testing.T, policy RetryPolicy, opts ...BaseClientOption) *BaseClient {
	t.Helper()
	opts = append([]BaseClientOption{WithSleepFunc(noopSleep)}, opts...)
	return NewBaseClient(&http.Client{Timeout: 5 * time.Second}, "test-provider", policy, opts...)
}

type recordedCall struct {
	provider, result string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeRecorder) RecordProviderCall(provider, result string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{provider, result})
}

func mustRequest(t *testing.T, ctx context.Context, method, url string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	return req
}

func TestDo_SuccessInjectsHeaders(t *testing.T) {
	var gotTrace, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = r.Header.Get("X-B3-TraceId")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	ctx := types.WithRequestID(context.Background(), "trace-123")
	resp, err := newTestClient(t, fastPolicy).Do(mustRequest(t, ctx, http.MethodGet, server.URL, nil))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"status":"ok"}` {
		t.Errorf("unexpected body: %s", body)
	}
	if gotTrace != "trace-123" {
		t.Errorf("X-B3-TraceId = %q", gotTrace)
	}
	if gotUA != "WillItRain/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestDo_NoTraceIDWhenNotInContext(t *testing.T) {
	var hasTrace bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasTrace = r.Header["X-B3-Traceid"]
	}))
	defer server.Close()

	resp, err := newTestClient(t, fastPolicy).Do(mustRequest(t, context.Background(), http.MethodGet, server.URL, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if hasTrace {
		t.Error("X-B3-TraceId should not be set without a request ID")
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusTooManyRequests} {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(status)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))

		resp, err := newTestClient(t, fastPolicy).Do(mustRequest(t, context.Background(), http.MethodGet, server.URL, nil))
		server.Close()
		if err != nil {
			t.Fatalf("status %d: expected eventual success, got %v", status, err)
		}
		resp.Body.Close()
		if calls.Load() != 3 {
			t.Errorf("status %d: expected 3 attempts, got %d", status, calls.Load())
		}
	}
}

func TestDo_ExhaustedRetries(t *testing.T) {
	tests := []struct {
		status   int
		wantCode types.ErrorCode
	}{
		{http.StatusBadGateway, types.ErrCodeUpstreamUnavailable},
		{http.StatusTooManyRequests, types.ErrCodeUpstreamRateLimited},
	}

	for _, tt := range tests {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(tt.status)
		}))

		resp, err := newTestClient(t, fastPolicy).Do(mustRequest(t, context.Background(), http.MethodGet, server.URL, nil))
		server.Close()

		if resp != nil {
			t.Errorf("status %d: expected nil response", tt.status)
		}
		var appErr *types.AppError
		if !errors.As(err, &appErr) {
			t.Fatalf("status %d: expected *types.AppError, got %T: %v", tt.status, err, err)
		}
		if appErr.Code != tt.wantCode {
			t.Errorf("status %d: code = %s, want %s", tt.status, appErr.Code, tt.wantCode)
		}
		if calls.Load() != 3 {
			t.Errorf("status %d: expected 3 attempts, got %d", tt.status, calls.Load())
		}
	}
}

func TestDo_4xxNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	resp, err := newTestClient(t, fastPolicy).Do(mustRequest(t, context.Background(), http.MethodGet, server.URL, nil))
	if err != nil {
		t.Fatalf("4xx should be returned as a response, got error %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity || calls.Load() != 1 {
		t.Errorf("status %d after %d calls", resp.StatusCode, calls.Load())
	}
}

func TestDo_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "test-open",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
	})
	recorder := &fakeRecorder{}
	client := NewBaseClientWithBreaker(&http.Client{Timeout: 5 * time.Second}, breaker, "nasa_power",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		WithSleepFunc(noopSleep), WithCallRecorder(recorder))

	for i := 0; i < 4; i++ {
		_, _ = client.Do(mustRequest(t, context.Background(), http.MethodGet, server.URL, nil))
	}
	before := calls.Load()

	_, err := client.Do(mustRequest(t, context.Background(), http.MethodGet, server.URL, nil))

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Fatalf("expected upstream_unavailable, got %v", err)
	}
	if !strings.Contains(appErr.Message, "nasa_power circuit breaker is open") {
		t.Errorf("message = %q", appErr.Message)
	}
	if calls.Load() != before {
		t.Errorf("server called %d more times with breaker open", calls.Load()-before)
	}

	last := recorder.calls[len(recorder.calls)-1]
	if last.provider != "nasa_power" || last.result != ResultBreakerOpen {
		t.Errorf("last recorded call = %+v", last)
	}
	if recorder.calls[0].result != ResultFailure {
		t.Errorf("first recorded call = %+v", recorder.calls[0])
	}
}

func TestDo_RespectsRetryAfterHeader(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(t, RetryPolicy{MaxRetries: 1, MinWait: 100 * time.Millisecond, MaxWait: 10 * time.Second},
		WithSleepFunc(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}))

	resp, err := client.Do(mustRequest(t, context.Background(), http.MethodGet, server.URL, nil))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	resp.Body.Close()

	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Errorf("sleeps = %v, want [2s]", slept)
	}
}

func TestDo_RetryAfterCappedByMaxWait(t *testing.T) {
	c := newTestClient(t, RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: 3 * time.Second})
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"120"}}}

	if got := c.computeBackoff(0, resp); got != 3*time.Second {
		t.Errorf("backoff = %v, want 3s", got)
	}
}

func TestComputeBackoff_WithinBounds(t *testing.T) {
	c := newTestClient(t, RetryPolicy{MaxRetries: 5, MinWait: 100 * time.Millisecond, MaxWait: time.Second})

	for attempt := 0; attempt < 6; attempt++ {
		got := c.computeBackoff(attempt, nil)
		if got < 100*time.Millisecond || got > time.Second {
			t.Errorf("attempt %d: backoff %v outside [100ms, 1s]", attempt, got)
		}
	}
}

func TestDo_ContextCancelledStopsRetrying(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := newTestClient(t, RetryPolicy{MaxRetries: 5, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		WithSleepFunc(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}))

	_, err := client.Do(mustRequest(t, ctx, http.MethodGet, server.URL, nil))

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Fatalf("expected upstream_unavailable, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", calls.Load())
	}
}

func TestDo_NetworkErrorMapsToUpstreamUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, fastPolicy).Do(mustRequest(t, context.Background(), http.MethodGet, url, nil))

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("code = %s", appErr.Code)
	}
}

func TestDo_PostBodyPreservedAcrossRetries(t *testing.T) {
	var calls atomic.Int32
	var bodies []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := newTestClient(t, fastPolicy).Do(
		mustRequest(t, context.Background(), http.MethodPost, server.URL, strings.NewReader(`{"lat":1}`)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(bodies) != 2 || bodies[0] != `{"lat":1}` || bodies[1] != `{"lat":1}` {
		t.Errorf("bodies = %q", bodies)
	}
}

func TestDo_RecordsClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	recorder := &fakeRecorder{}
	resp, err := newTestClient(t, fastPolicy, WithCallRecorder(recorder)).
		Do(mustRequest(t, context.Background(), http.MethodGet, server.URL, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(recorder.calls) != 1 || recorder.calls[0].result != ResultClientError {
		t.Errorf("calls = %+v", recorder.calls)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxRetries != 2 || p.MinWait != 250*time.Millisecond || p.MaxWait != 5*time.Second {
		t.Errorf("DefaultRetryPolicy = %+v", p)
	}
}
