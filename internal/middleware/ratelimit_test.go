package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// The whole burst goes through.
	for i := range 10 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", http.NoBody)
		req.RemoteAddr = "192.168.1.1:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(10, 5)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for range 5 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", http.NoBody)
		req.RemoteAddr = "192.168.1.1:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", http.NoBody)
	req.RemoteAddr = "192.168.1.1:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(10, 2)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", http.NoBody)
		req.RemoteAddr = "10.0.0.1:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	// The exhausted IP is limited.
	req1 := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", http.NoBody)
	req1.RemoteAddr = "10.0.0.1:4000"
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusTooManyRequests {
		t.Errorf("IP 10.0.0.1: expected 429, got %d", rec1.Code)
	}

	// Other IPs keep their own budget.
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", http.NoBody)
	req2.RemoteAddr = "10.0.0.2:4000"
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Errorf("IP 10.0.0.2: expected 200, got %d", rec2.Code)
	}
}

func TestLimitPathScopesToRoute(t *testing.T) {
	rl := NewRateLimiter(10, 1)
	handler := rl.LimitPath(http.MethodPost, "/api/v1/auth/token")(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	// Burn the single token on the guarded route.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", http.NoBody)
	req.RemoteAddr = "10.0.0.9:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", http.NoBody)
	req.RemoteAddr = "10.0.0.9:4000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}

	// Other routes are unaffected.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/queue", http.NoBody)
	req.RemoteAddr = "10.0.0.9:4000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unguarded route: expected 200, got %d", rec.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(10, 5)

	for i := range 3 {
		rl.admit(fmt.Sprintf("10.0.0.%d", i))
	}
	if rl.Len() != 3 {
		t.Fatalf("expected 3 tracked buckets, got %d", rl.Len())
	}

	time.Sleep(2 * time.Millisecond)
	rl.cleanup(time.Millisecond)

	if rl.Len() != 0 {
		t.Fatalf("expected idle buckets to be dropped, got %d", rl.Len())
	}
}
