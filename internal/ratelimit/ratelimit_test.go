package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keithlinneman/httppipe/internal/httpmw"
	"github.com/keithlinneman/httppipe/internal/pipeline"
)

func newTestLimiter(t *testing.T, opts ...Option) *Limiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	all := append([]Option{WithRate(10, 5), WithTTL(100 * time.Millisecond)}, opts...)
	return New(ctx, all...)
}

func TestDefaults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New(ctx)

	if l.perSecond != 10 || l.burst != 30 || l.ttl != 5*time.Minute || l.maxKeys != 100000 {
		t.Fatalf("defaults = %v/%d/%v/%d", l.perSecond, l.burst, l.ttl, l.maxKeys)
	}
}

func TestAllow_BurstThenReject(t *testing.T) {
	l := newTestLimiter(t, WithRate(1, 5))
	for i := 0; i < 5; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("request 6 allowed after burst")
	}
}

func TestAllow_SeparateBuckets(t *testing.T) {
	l := newTestLimiter(t, WithRate(1, 1))
	l.Allow("a")
	if l.Allow("a") {
		t.Fatal("a should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("b should have its own bucket")
	}
}

func TestAllow_Refills(t *testing.T) {
	l := newTestLimiter(t, WithRate(20, 1), WithTTL(time.Minute))
	l.Allow("a")
	if l.Allow("a") {
		t.Fatal("second immediate request allowed")
	}
	time.Sleep(100 * time.Millisecond)
	if !l.Allow("a") {
		t.Fatal("bucket did not refill")
	}
}

func TestDeniedHooks(t *testing.T) {
	var first, every atomic.Int32
	l := newTestLimiter(t,
		WithRate(1, 1),
		WithOnFirstDenied(func(string) { first.Add(1) }),
		WithOnDenied(func(string) { every.Add(1) }),
	)
	for i := 0; i < 4; i++ {
		l.Allow("10.0.0.1")
	}
	l.Allow("10.0.0.2")
	l.Allow("10.0.0.2")

	if first.Load() != 2 {
		t.Fatalf("first-denied = %d, want one per key", first.Load())
	}
	if every.Load() != 4 {
		t.Fatalf("denied = %d, want 4", every.Load())
	}
}

func TestNilHooks_NoPanic(t *testing.T) {
	l := newTestLimiter(t, WithRate(1, 1), WithMaxKeys(1))
	l.Allow("a")
	l.Allow("a")
	l.Allow("b")
}

func TestSweep_EvictsIdleAndResetsWarning(t *testing.T) {
	var first atomic.Int32
	l := newTestLimiter(t, WithRate(1, 1), WithTTL(40*time.Millisecond),
		WithOnFirstDenied(func(string) { first.Add(1) }))

	l.Allow("a")
	l.Allow("a")
	time.Sleep(150 * time.Millisecond)
	if l.Len() != 0 {
		t.Fatalf("Len = %d after ttl, want 0", l.Len())
	}
	l.Allow("a")
	l.Allow("a")
	if first.Load() != 2 {
		t.Fatalf("first-denied = %d, want 2 after eviction", first.Load())
	}
}

func TestSweep_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New(ctx, WithTTL(20*time.Millisecond))
	l.Allow("a")
	cancel()
	time.Sleep(80 * time.Millisecond)
	if l.Len() != 1 {
		t.Fatal("sweeper kept running after cancel")
	}
}

// key cap

func TestMaxKeys_NewKeyRefusedAtCapacity(t *testing.T) {
	l := newTestLimiter(t, WithRate(100, 100), WithMaxKeys(3))
	for i := 1; i <= 3; i++ {
		if !l.Allow(fmt.Sprintf("10.0.0.%d", i)) {
			t.Fatalf("key %d refused below capacity", i)
		}
	}
	if l.Allow("10.0.0.99") {
		t.Fatal("new key admitted at capacity")
	}
	if !l.Allow("10.0.0.1") {
		t.Fatal("known key refused at capacity")
	}
}

func TestMaxKeys_OnCapacityOncePerEpisode(t *testing.T) {
	var hits atomic.Int32
	l := newTestLimiter(t, WithRate(100, 100), WithMaxKeys(1), WithTTL(40*time.Millisecond),
		WithOnCapacity(func() { hits.Add(1) }))

	l.Allow("a")
	l.Allow("b")
	l.Allow("c")
	if hits.Load() != 1 {
		t.Fatalf("OnCapacity = %d, want 1", hits.Load())
	}

	time.Sleep(150 * time.Millisecond)
	if !l.Allow("b") {
		t.Fatal("sweep did not free capacity")
	}
	l.Allow("c")
	if hits.Load() != 2 {
		t.Fatalf("OnCapacity = %d, want 2 after capacity was freed", hits.Load())
	}
}

func TestMaxKeys_ZeroDisables(t *testing.T) {
	l := newTestLimiter(t, WithRate(100, 100), WithMaxKeys(0))
	for i := 0; i < 200; i++ {
		if !l.Allow(fmt.Sprintf("k%d", i)) {
			t.Fatalf("key %d refused with cap disabled", i)
		}
	}
}

func TestMaxKeys_Concurrent(t *testing.T) {
	l := newTestLimiter(t, WithRate(100, 100), WithMaxKeys(50))

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if l.Allow(fmt.Sprintf("k%d", n)) {
				allowed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if allowed.Load() != 50 || l.Len() != 50 {
		t.Fatalf("allowed=%d len=%d, want 50/50", allowed.Load(), l.Len())
	}
}

// middleware

func limited(l *Limiter, reached *atomic.Int32) *pipeline.Pipeline {
	return pipeline.NewBuilder().
		Use(httpmw.ClientIP(httpmw.ClientIPOptions{})).
		Use(l.Middleware()).
		Run(func(c *pipeline.Context) error {
			reached.Add(1)
			return c.Response.WriteString(http.StatusOK, "ok")
		}).
		Build()
}

func requestFrom(p *pipeline.Pipeline, addr string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.RemoteAddr = addr
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, r)
	return rec
}

func TestMiddleware_Returns429(t *testing.T) {
	var reached atomic.Int32
	p := limited(newTestLimiter(t, WithRate(1, 2)), &reached)

	for i := 0; i < 2; i++ {
		if rec := requestFrom(p, "203.0.113.1:1000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i+1, rec.Code)
		}
	}
	rec := requestFrom(p, "203.0.113.1:1001")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "30" {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("Content-Type") != "application/json; charset=utf-8" {
		t.Fatalf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != `{"error":"too many requests"}` {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if reached.Load() != 2 {
		t.Fatalf("terminal reached %d times, want 2", reached.Load())
	}
}

func TestMiddleware_ClientsIndependent(t *testing.T) {
	var reached atomic.Int32
	p := limited(newTestLimiter(t, WithRate(1, 1)), &reached)

	requestFrom(p, "203.0.113.1:1")
	if rec := requestFrom(p, "203.0.113.1:2"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("same client: %d", rec.Code)
	}
	if rec := requestFrom(p, "203.0.113.2:1"); rec.Code != http.StatusOK {
		t.Fatalf("other client: %d", rec.Code)
	}
}

func TestMiddleware_CustomKey(t *testing.T) {
	var reached atomic.Int32
	l := newTestLimiter(t, WithRate(1, 1), WithKey(func(c *pipeline.Context) string {
		return c.Request.Header.Get("X-Tenant")
	}))
	p := limited(l, &reached)

	send := func(tenant string) int {
		r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		r.Header.Set("X-Tenant", tenant)
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, r)
		return rec.Code
	}
	send("a")
	if send("a") != http.StatusTooManyRequests {
		t.Fatal("tenant a not limited")
	}
	if send("b") != http.StatusOK {
		t.Fatal("tenant b limited by a's bucket")
	}
}

func TestMiddleware_EmptyKeySharesBucket(t *testing.T) {
	var reached atomic.Int32
	l := newTestLimiter(t, WithRate(1, 1), WithKey(func(*pipeline.Context) string { return "" }))
	p := limited(l, &reached)

	requestFrom(p, "203.0.113.1:1")
	if rec := requestFrom(p, "203.0.113.2:1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 from the shared empty-key bucket", rec.Code)
	}
}
