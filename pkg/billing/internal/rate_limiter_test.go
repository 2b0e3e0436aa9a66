package internal

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(limit int, period time.Duration) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(limit, period)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_LimitsPerClient(t *testing.T) {
	rl, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if ok, _ := rl.allow("10.0.0.1"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, wait := rl.allow("10.0.0.1")
	if ok {
		t.Fatal("4th request should be rejected")
	}
	if wait != time.Minute {
		t.Errorf("expected wait of 1m, got %v", wait)
	}

	if ok, _ := rl.allow("10.0.0.2"); !ok {
		t.Error("other clients must not share the window")
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl, clock := newTestLimiter(1, time.Minute)

	if ok, _ := rl.allow("10.0.0.1"); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := rl.allow("10.0.0.1"); ok {
		t.Fatal("second request should be rejected")
	}

	clock.advance(time.Minute)
	if ok, _ := rl.allow("10.0.0.1"); !ok {
		t.Error("request after window reset should be allowed")
	}
}

func TestRateLimiter_SweepsExpiredWindows(t *testing.T) {
	rl, clock := newTestLimiter(10, time.Minute)

	for i := 0; i < 50; i++ {
		rl.allow(fmt.Sprintf("192.168.1.%d", i))
	}
	if got := rl.Tracked(); got != 50 {
		t.Fatalf("expected 50 tracked clients, got %d", got)
	}

	clock.advance(2 * time.Minute)
	for i := 0; i < rl.sweepEvery; i++ {
		rl.allow("10.0.0.1")
	}

	if got := rl.Tracked(); got != 1 {
		t.Errorf("expected expired windows to be swept, %d clients still tracked", got)
	}
}

func TestRateLimiter_SweepsWhenMapGrows(t *testing.T) {
	rl, clock := newTestLimiter(10, time.Minute)

	for i := 0; i <= rl.sweepAtSize; i++ {
		rl.allow(fmt.Sprintf("10.1.%d.%d", i/256, i%256))
	}
	clock.advance(2 * time.Minute)
	rl.allow("10.0.0.1")

	if got := rl.Tracked(); got != 1 {
		t.Errorf("expected sweep once size threshold was exceeded, %d clients tracked", got)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(1, 30*time.Second)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/webhook", http.NoBody)
		req.RemoteAddr = "203.0.113.7:51234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("expected Retry-After 30, got %q", got)
	}
}

func TestRateLimiter_Middleware_IgnoresForwardedFor(t *testing.T) {
	rl, _ := newTestLimiter(1, 30*time.Second)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// A caller forging another client's address must not spend that
	// client's window.
	forged := httptest.NewRequest(http.MethodPost, "/api/webhook", http.NoBody)
	forged.RemoteAddr = "198.51.100.66:40000"
	forged.Header.Set("X-Forwarded-For", "203.0.113.7")
	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), forged)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/webhook", http.NoBody)
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for the real client, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"remote addr with port", "", "198.51.100.4:4431", "198.51.100.4"},
		{"remote addr without port", "", "198.51.100.4", "198.51.100.4"},
		{"forwarded header ignored", "203.0.113.9, 10.0.0.1", "10.0.0.1:80", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
