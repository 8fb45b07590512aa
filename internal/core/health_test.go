package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockHealthProbe struct {
	name  string
	check func(ctx context.Context) error
}

func (m *mockHealthProbe) Name() string { return m.name }

func (m *mockHealthProbe) Check(ctx context.Context) error { return m.check(ctx) }

func runHealth(t *testing.T, probes ...HealthProbe) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()
	srv := newTestServer(t)
	srv.HealthProbes = probes

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec, resp
}

func TestHandleHealth_NoProbes(t *testing.T) {
	rec, resp := runHealth(t)
	if rec.Code != http.StatusOK || resp.Status != "healthy" {
		t.Errorf("got %d %+v", rec.Code, resp)
	}
	if resp.Components != nil {
		t.Errorf("components = %v, want none", resp.Components)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	rec, resp := runHealth(t,
		&mockHealthProbe{name: "database", check: func(context.Context) error { return nil }},
		&mockHealthProbe{name: "history_cache", check: func(context.Context) error { return nil }},
	)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for _, name := range []string{"database", "history_cache"} {
		if resp.Components[name].Status != "healthy" {
			t.Errorf("%s = %+v", name, resp.Components[name])
		}
	}
}

func TestHandleHealth_FailingProbe(t *testing.T) {
	rec, resp := runHealth(t,
		&mockHealthProbe{name: "database", check: func(context.Context) error { return errors.New("connection refused") }},
		&mockHealthProbe{name: "history_cache", check: func(context.Context) error { return nil }},
	)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("status = %q", resp.Status)
	}
	if got := resp.Components["database"]; got.Status != "unhealthy" || got.Message != "connection refused" {
		t.Errorf("database = %+v", got)
	}
	if resp.Components["history_cache"].Status != "healthy" {
		t.Errorf("history_cache = %+v", resp.Components["history_cache"])
	}
}

func TestHandleHealth_PanickingProbe(t *testing.T) {
	rec, resp := runHealth(t,
		&mockHealthProbe{name: "database", check: func(context.Context) error { panic("nil pool") }},
	)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if resp.Components["database"].Status != "unhealthy" {
		t.Errorf("database = %+v", resp.Components["database"])
	}
}

func TestHandleHealth_ProbeTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the health deadline")
	}

	release := make(chan struct{})
	defer close(release)

	rec, resp := runHealth(t,
		&mockHealthProbe{name: "database", check: func(ctx context.Context) error {
			<-release
			return nil
		}},
	)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if resp.Components["database"].Message != "health check timed out" {
		t.Errorf("database = %+v", resp.Components["database"])
	}
}
