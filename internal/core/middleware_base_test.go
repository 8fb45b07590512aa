package core

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"willitrain/internal/types"
)

func TestRequestLogger_RedactsSensitiveHeaders(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestLogger(logger, defaultRedactedHeaders)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/outlook", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("Cookie", "session=abc")
	req.Header.Set("Accept", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "secret-token") || strings.Contains(out, "session=abc") {
		t.Errorf("sensitive header leaked: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected redaction marker: %s", out)
	}
	if !strings.Contains(out, "application/json") {
		t.Errorf("non-sensitive header should be logged: %s", out)
	}
}

func TestRequestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, `"level":"INFO"`},
		{http.StatusNotFound, `"level":"WARN"`},
		{http.StatusBadGateway, `"level":"ERROR"`},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		h := RequestLogger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		if !strings.Contains(buf.String(), tt.level) {
			t.Errorf("status %d: log %s missing %s", tt.status, buf.String(), tt.level)
		}
	}
}

func TestRequestLogger_TagsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestLogger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		types.LoggerFromContext(r.Context(), nil).Info("inside handler")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req-42"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, `"request_id":"req-42"`) {
			t.Errorf("line missing request_id: %s", line)
		}
	}
}

func TestRecoverer_RethrowsAbortHandler(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rvr := recover(); rvr != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rvr)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestMetricsMiddleware_NoCollectorPassesThrough(t *testing.T) {
	srv := newTestServer(t)
	called := false
	h := srv.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("next handler not called")
	}
}

func TestResponseCapture_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rc := &responseCapture{ResponseWriter: rec, statusCode: http.StatusOK}

	_, _ = rc.Write([]byte("body"))
	rc.WriteHeader(http.StatusTeapot)

	if rc.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", rc.statusCode)
	}
	if rc.Unwrap() != rec {
		t.Error("Unwrap should return the wrapped writer")
	}
}
