package apphttp

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/keithlinneman/httppipe/internal/health"
	"github.com/keithlinneman/httppipe/internal/httpmw"
	"github.com/keithlinneman/httppipe/internal/metrics"
)

const testKey = "s3cret"

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func testOptions() *Options {
	return &Options{
		IDs:    httpmw.NewSeededIDs(7),
		APIKey: testKey,
		Rand:   rand.New(rand.NewPCG(1, 2)),
		Now:    func() time.Time { return fixedNow },
	}
}

func do(t *testing.T, h http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

var shortID = regexp.MustCompile(`^[0-9a-f]{8}$`)

// endpoints

func TestNew_Greeting(t *testing.T) {
	rec := do(t, New(testOptions()), http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != greetingText {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	if !shortID.MatchString(rec.Header().Get("X-Correlation-Id")) {
		t.Fatalf("correlation id = %q", rec.Header().Get("X-Correlation-Id"))
	}
}

func TestNew_WeatherForecast(t *testing.T) {
	rec := do(t, New(testOptions()), http.MethodGet, "/weatherforecast", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[[]Forecast](t, rec)
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	for i, f := range got {
		want := fixedNow.AddDate(0, 0, i+1).Format(time.DateOnly)
		if f.Date != want {
			t.Errorf("[%d] date = %q, want %q", i, f.Date, want)
		}
		if f.TemperatureC < -20 || f.TemperatureC >= 55 {
			t.Errorf("[%d] temperatureC = %d out of range", i, f.TemperatureC)
		}
		if f.TemperatureF != fahrenheit(f.TemperatureC) {
			t.Errorf("[%d] temperatureF = %d, want %d", i, f.TemperatureF, fahrenheit(f.TemperatureC))
		}
		if f.Summary == "" {
			t.Errorf("[%d] empty summary", i)
		}
	}
}

func TestNew_WeatherForecastSeeded(t *testing.T) {
	a := do(t, New(testOptions()), http.MethodGet, "/weatherforecast", nil).Body.String()
	b := do(t, New(testOptions()), http.MethodGet, "/weatherforecast", nil).Body.String()
	if a != b {
		t.Fatalf("same seed produced different forecasts:\n%s\n%s", a, b)
	}
}

func TestFahrenheit(t *testing.T) {
	cases := map[int]int{0: 32, 100: 211, -20: 32 - 35, 37: 98}
	for c, want := range cases {
		if got := fahrenheit(c); got != want {
			t.Errorf("fahrenheit(%d) = %d, want %d", c, got, want)
		}
	}
}

func TestNew_UnknownPathIs404(t *testing.T) {
	rec := do(t, New(testOptions()), http.MethodGet, "/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") == "" {
		t.Fatal("security headers missing on 404")
	}
}

func TestNew_DotSegmentsCannotDodgeGuard(t *testing.T) {
	rec := do(t, New(testOptions()), http.MethodGet, "/public/../secure/data", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// exception boundary

func TestNew_ThrowAbsorbedAs500(t *testing.T) {
	rec := do(t, New(testOptions()), http.MethodGet, "/throw", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	fault := decode[httpmw.ServerFault](t, rec)
	if fault.Error != "Internal Server Error" || fault.Message != throwMessage {
		t.Fatalf("fault = %+v", fault)
	}
	if fault.CorrelationID == nil || *fault.CorrelationID != rec.Header().Get("X-Correlation-Id") {
		t.Fatalf("fault correlation id %v does not match header %q", fault.CorrelationID, rec.Header().Get("X-Correlation-Id"))
	}
}

// key guard

func TestNew_SecureRequiresKey(t *testing.T) {
	h := New(testOptions())

	for name, hdr := range map[string]map[string]string{
		"missing": nil,
		"wrong":   {"X-Api-Key": "guess"},
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/secure/data", hdr)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			want := `{"error":"Unauthorized","message":"A valid 'X-Api-Key' header is required."}`
			if rec.Body.String() != want {
				t.Fatalf("body = %q", rec.Body.String())
			}
			if rec.Header().Get("X-Correlation-Id") == "" {
				t.Fatal("correlation id missing on rejection")
			}
		})
	}
}

func TestNew_SecureWithKey(t *testing.T) {
	rec := do(t, New(testOptions()), http.MethodGet, "/secure/data", map[string]string{
		"X-Api-Key":        testKey,
		"X-Correlation-Id": "inbound-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[SecureData](t, rec)
	if got.Message != "You have access to secure data!" {
		t.Fatalf("message = %q", got.Message)
	}
	if got.CorrelationID == nil || *got.CorrelationID != "inbound-1" {
		t.Fatalf("correlationId = %v, want inbound-1", got.CorrelationID)
	}
	if !got.Timestamp.Equal(fixedNow) {
		t.Fatalf("timestamp = %v", got.Timestamp)
	}
	if rec.Header().Get("X-Correlation-Id") != "inbound-1" {
		t.Fatalf("header = %q", rec.Header().Get("X-Correlation-Id"))
	}
}

func TestNew_KeyNotRequiredOutsideSecure(t *testing.T) {
	rec := do(t, New(testOptions()), http.MethodGet, "/securex", nil)
	if rec.Code == http.StatusUnauthorized {
		t.Fatal("key guard ran outside the secure prefix")
	}
}

func TestNew_CustomSecurePrefixAndHeader(t *testing.T) {
	o := testOptions()
	o.SecurePrefix = "/vault"
	o.APIKeyHeader = "X-Vault-Key"
	h := New(o)

	if rec := do(t, h, http.MethodGet, "/vault/data", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/vault/data", map[string]string{"X-Vault-Key": testKey}); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestNew_SecurePrefixTrailingSlash(t *testing.T) {
	o := testOptions()
	o.SecurePrefix = "/secure/"
	h := New(o)

	if rec := do(t, h, http.MethodGet, "/secure/data", map[string]string{"X-Api-Key": testKey}); rec.Code != http.StatusOK {
		t.Fatalf("/secure/data: status = %d, want 200", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/secure//data", map[string]string{"X-Api-Key": testKey}); rec.Code == http.StatusOK {
		t.Fatal("/secure//data served the protected endpoint")
	}
	if rec := do(t, h, http.MethodGet, "/secure/data", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("without key: status = %d, want 401", rec.Code)
	}
}

func TestNew_EmptyKeyRejectsAll(t *testing.T) {
	o := testOptions()
	o.APIKey = ""
	rec := do(t, New(o), http.MethodGet, "/secure/data", map[string]string{"X-Api-Key": ""})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

// branches

func TestNew_HealthBranch(t *testing.T) {
	rec := do(t, New(testOptions()), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[HealthStatus](t, rec)
	if got.Status != "healthy" || !got.Timestamp.Equal(fixedNow) {
		t.Fatalf("health = %+v", got)
	}
}

func TestNew_HealthBranchFollowsReadiness(t *testing.T) {
	var gate health.DrainGate
	o := testOptions()
	o.Readiness = &gate
	h := New(o)

	gate.Drain("shutting down")
	rec := do(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	got := decode[HealthStatus](t, rec)
	if got.Status != "unhealthy" || got.Reason != "shutting down" {
		t.Fatalf("health = %+v", got)
	}
}

func TestNew_TerminalBranch(t *testing.T) {
	h := New(testOptions())
	for _, path := range []string{"/terminal", "/terminal/anything"} {
		rec := do(t, h, http.MethodPost, path, nil)
		if rec.Code != http.StatusOK || rec.Body.String() != terminalBody {
			t.Fatalf("%s: status=%d body=%q", path, rec.Code, rec.Body.String())
		}
	}
}

// metrics

func family(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	fams, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range fams {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func labelled(f *dto.MetricFamily, want map[string]string) *dto.Metric {
	for _, m := range f.GetMetric() {
		match := true
		have := map[string]string{}
		for _, lp := range m.GetLabel() {
			have[lp.GetName()] = lp.GetValue()
		}
		for k, v := range want {
			if have[k] != v {
				match = false
			}
		}
		if match {
			return m
		}
	}
	return nil
}

func TestNew_Metrics(t *testing.T) {
	m := metrics.New()
	o := testOptions()
	o.Metrics = m
	h := New(o)

	do(t, h, http.MethodGet, "/weatherforecast", nil)
	do(t, h, http.MethodGet, "/health", nil)
	do(t, h, http.MethodGet, "/throw", nil)
	do(t, h, http.MethodGet, "/secure/data", nil)

	reqs := family(t, m.Registry(), "http_requests_total")
	if reqs == nil {
		t.Fatal("http_requests_total not exported")
	}
	for _, want := range []map[string]string{
		{"route": "/weatherforecast", "status": "200"},
		{"route": "/health", "status": "200"},
		{"route": "/throw", "status": "500"},
		{"route": "unmatched", "status": "401"},
	} {
		if labelled(reqs, want) == nil {
			t.Errorf("no sample for %v", want)
		}
	}

	fails := family(t, m.Registry(), "pipeline_failures_total")
	if fails == nil || labelled(fails, map[string]string{"kind": "error"}).GetCounter().GetValue() != 1 {
		t.Fatal("absorbed failure not counted")
	}
	rej := family(t, m.Registry(), "pipeline_key_rejections_total")
	if rej == nil || labelled(rej, map[string]string{"reason": "missing"}) == nil {
		t.Fatal("key rejection not counted")
	}
}

func TestRoutes_Standalone(t *testing.T) {
	rec := do(t, Routes(testOptions()), http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "Hello!") {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
}
