package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"media-shrinker/internal/metrics"
)

func TestIPRateLimiterAllow(t *testing.T) {
	l := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 3})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := range 3 {
		if !l.Allow("a") {
			t.Fatalf("request %d within burst was rejected", i+1)
		}
	}
	if l.Allow("a") {
		t.Error("request over burst should be rejected")
	}
	if !l.Allow("b") {
		t.Error("clients must have separate buckets")
	}

	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Error("a token should be refilled after one second")
	}
}

func TestIPRateLimiterCleanup(t *testing.T) {
	l := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 10, Burst: 10})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(visitorIdleTTL - time.Second)
	l.Allow("recent")
	now = now.Add(2 * time.Second)

	if n := l.Cleanup(); n != 1 {
		t.Errorf("Cleanup() = %d, want 1", n)
	}
	if _, ok := l.visitors["recent"]; !ok {
		t.Error("recent client should be kept")
	}
}

func TestIPRateLimiterMinimumBurst(t *testing.T) {
	l := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1})
	if l.burst != 1 {
		t.Errorf("burst = %d, want 1", l.burst)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	before := testutil.ToFloat64(metrics.HTTPRateLimitedTotal)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/status?key=a", http.NoBody))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/status?key=a", http.NoBody))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	if got := testutil.ToFloat64(metrics.HTTPRateLimitedTotal) - before; got != 1 {
		t.Errorf("rate limited counter delta = %v, want 1", got)
	}
}
