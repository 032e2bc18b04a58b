package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestHealthzHandler(t *testing.T) {
	cases := []struct {
		name     string
		probe    Probe
		wantCode int
		wantBody string
	}{
		{"healthy", Fixed(true, ""), http.StatusOK, "ok"},
		{"nil probe", nil, http.StatusOK, "ok"},
		{"unhealthy", Fixed(false, "database down"), http.StatusServiceUnavailable, "database down"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HealthzHandler(tc.probe).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/healthy", http.NoBody))
			if rec.Code != tc.wantCode || !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Fatal("health response cacheable")
			}
		})
	}
}

func TestReadyzHandler_FollowsGate(t *testing.T) {
	var g DrainGate
	h := ReadyzHandler(&g)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", http.NoBody))
	if rec.Code != http.StatusOK || rec.Body.String() != "ready\n" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}

	g.Drain("")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", http.NoBody))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 while draining", rec.Code)
	}
}

func TestHealthzHandler_PassesRequestContext(t *testing.T) {
	type key struct{}
	var saw atomic.Bool
	p := CheckFunc(func(ctx context.Context) error {
		saw.Store(ctx.Value(key{}) == "v")
		return nil
	})
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req = req.WithContext(context.WithValue(req.Context(), key{}, "v"))
	HealthzHandler(p).ServeHTTP(httptest.NewRecorder(), req)
	if !saw.Load() {
		t.Fatal("probe did not receive the request context")
	}
}
