package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/MahdiBaghbani/familyagenda-go/internal/interceptors"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/cache/memory"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/deps"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/logutil"
)

// failingCounter always errors, to exercise fail-open.
type failingCounter struct{}

func (failingCounter) Increment(context.Context, string, int64, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, context.DeadlineExceeded
}
func (failingCounter) GetCount(context.Context, string) (int64, error) { return 0, nil }
func (failingCounter) Reset(context.Context, string) error             { return nil }

func newLimiter(t *testing.T, limit int64, keyFunc func(*http.Request) string) *Limiter {
	t.Helper()
	c := memory.New(time.Minute, 0)
	t.Cleanup(func() { _ = c.Close() })
	return &Limiter{
		cache:   c,
		keyFunc: keyFunc,
		scope:   "test",
		limit:   limit,
		window:  60 * time.Second,
		log:     logutil.Noop(),
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestInit_RegistersInterceptor(t *testing.T) {
	fn, ok := interceptors.Get("ratelimit")
	if !ok || fn == nil {
		t.Fatal("expected ratelimit interceptor to be registered")
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	tests := []struct {
		name     string
		input    Config
		expected Config
	}{
		{"empty config gets defaults", Config{}, Config{RequestsPerWindow: 100, WindowSeconds: 60, Scope: "default"}},
		{"partial config", Config{RequestsPerWindow: 5}, Config{RequestsPerWindow: 5, WindowSeconds: 60, Scope: "default"}},
		{"full config unchanged", Config{RequestsPerWindow: 200, WindowSeconds: 120, Scope: "invite"}, Config{RequestsPerWindow: 200, WindowSeconds: 120, Scope: "invite"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.input
			c.ApplyDefaults()
			if c != tt.expected {
				t.Errorf("got %+v, want %+v", c, tt.expected)
			}
		})
	}
}

func TestLimiter_BlocksRequestsOverLimit(t *testing.T) {
	handler := newLimiter(t, 2, func(*http.Request) string { return "test-ip" }).Wrap(okHandler())

	for i := 1; i <= 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/invite", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: expected status 200, got %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/invite", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("request 3: expected status 429, got %d", rec.Code)
	}

	val, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || val < 1 {
		t.Errorf("Retry-After should be a positive integer, got %q", rec.Header().Get("Retry-After"))
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Error != "rate_limited" {
		t.Errorf("expected error 'rate_limited', got %q", body.Error)
	}
}

func TestLimiter_DifferentKeysTrackedSeparately(t *testing.T) {
	handler := newLimiter(t, 1, func(r *http.Request) string { return r.Header.Get("X-Test-Key") }).Wrap(okHandler())

	send := func(key string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Test-Key", key)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("client-a"); code != http.StatusOK {
		t.Errorf("client-a first: %d", code)
	}
	if code := send("client-a"); code != http.StatusTooManyRequests {
		t.Errorf("client-a second: expected 429, got %d", code)
	}
	if code := send("client-b"); code != http.StatusOK {
		t.Errorf("client-b first: expected 200, got %d", code)
	}
}

func TestLimiter_AllowsOnCacheError(t *testing.T) {
	l := newLimiter(t, 1, func(*http.Request) string { return "ip" })
	l.cache = failingCounter{}

	rec := httptest.NewRecorder()
	l.Wrap(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 on cache error (fail open), got %d", rec.Code)
	}
}

func TestWithKeyFunc(t *testing.T) {
	original := newLimiter(t, 10, func(*http.Request) string { return "original" })
	modified := original.WithKeyFunc(func(*http.Request) string { return "custom" })

	req := httptest.NewRequest("GET", "/test", nil)
	if original.keyFunc(req) != "original" {
		t.Error("original keyFunc should not be modified")
	}
	if modified.keyFunc(req) != "custom" {
		t.Error("modified keyFunc should return 'custom'")
	}
	if modified.limit != original.limit || modified.window != original.window || modified.scope != original.scope {
		t.Error("other fields should be copied")
	}
}

func TestNew_WithDeps(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	d := &deps.Deps{Cache: c, RealIP: realip.NewTrustedProxies(nil)}

	mw, err := New(map[string]any{"requests_per_window": int64(1), "window_seconds": int64(30)}, d, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	handler := mw(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest("POST", "/api/invite", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := send("192.168.1.100:12345"); code != http.StatusOK {
		t.Errorf("first request: %d", code)
	}
	if code := send("192.168.1.100:23456"); code != http.StatusTooManyRequests {
		t.Errorf("same IP, second request: expected 429, got %d", code)
	}
	if code := send("192.168.1.101:12345"); code != http.StatusOK {
		t.Errorf("other IP: expected 200, got %d", code)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(nil, nil, nil); err == nil {
		t.Error("expected error without deps")
	}
	if _, err := New(nil, &deps.Deps{}, nil); err == nil {
		t.Error("expected error without cache")
	}
}
