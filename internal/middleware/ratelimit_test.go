package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestInMemoryRateLimitStore_FixedWindow tests the counter within one window.
func TestInMemoryRateLimitStore_FixedWindow(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _ := store.Allow(ctx, "k1", cfg)
		if !allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
	}

	allowed, retryAfter := store.Allow(ctx, "k1", cfg)
	if allowed {
		t.Error("expected 4th request blocked")
	}
	if retryAfter <= 0 {
		t.Errorf("expected positive retry-after, got %d", retryAfter)
	}

	// A different key gets its own bucket.
	if allowed, _ := store.Allow(ctx, "k2", cfg); !allowed {
		t.Error("expected independent key to be allowed")
	}
}

// TestRateLimiter_Returns429 tests the middleware response on limit breach,
// including the JSON error envelope.
func TestRateLimiter_Returns429(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	handler := RateLimiter(store, cfg, IPKeyFunc(), nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "rate_limit_exceeded" {
		t.Errorf("expected rate_limit_exceeded, got %q", envelope.Error.Code)
	}
}

// TestRateLimiter_RecordsMetrics tests that checks and rejections show up in
// the limiter counters with the normalized route label.
func TestRateLimiter_RecordsMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(registry); err != nil {
		t.Fatalf("register metrics: %v", err)
	}

	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	handler := RateLimiter(store, cfg, UserKeyFunc(), metrics)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/events/ev1/face-match", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	counters := map[string]float64{}
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			counters[mf.GetName()] += m.GetCounter().GetValue()
		}
	}
	if got := counters["rate_limit_requests_total"]; got != 2 {
		t.Errorf("expected 2 checks recorded, got %v", got)
	}
	if got := counters["rate_limit_blocked_total"]; got != 1 {
		t.Errorf("expected 1 rejection recorded, got %v", got)
	}
}

// TestUserKeyFunc tests user-vs-IP key selection.
func TestUserKeyFunc(t *testing.T) {
	keyFunc := UserKeyFunc()

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := keyFunc(req); got != "ip:10.0.0.1" {
		t.Errorf("expected ip key, got %q", got)
	}

	req = req.WithContext(SetUserID(req.Context(), "u1"))
	if got := keyFunc(req); got != "user:u1" {
		t.Errorf("expected user key, got %q", got)
	}
}

// TestCleanup_RemovesExpiredBuckets tests the periodic sweep.
func TestCleanup_RemovesExpiredBuckets(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Millisecond}
	store.Allow(context.Background(), "k1", cfg)

	time.Sleep(5 * time.Millisecond)
	store.Cleanup()

	store.mu.RLock()
	defer store.mu.RUnlock()
	if len(store.buckets) != 0 {
		t.Errorf("expected buckets cleared, got %d", len(store.buckets))
	}
}

// TestRateLimitConfig_Validate tests config validation.
func TestRateLimitConfig_Validate(t *testing.T) {
	if err := (RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute}).Validate(); err == nil {
		t.Error("expected error for zero requests per window")
	}
	if err := (RateLimitConfig{RequestsPerWindow: 5, WindowDuration: 0}).Validate(); err == nil {
		t.Error("expected error for zero window")
	}
	if err := DefaultFaceMatchLimit().Validate(); err != nil {
		t.Errorf("expected default face-match limit valid, got %v", err)
	}
}
