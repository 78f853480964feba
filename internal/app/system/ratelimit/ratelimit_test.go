package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	l := New(2, time.Minute)
	defer l.Stop()

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two requests should be allowed")
	}
	if l.Allow("a") {
		t.Error("third request should be limited")
	}
	if !l.Allow("b") {
		t.Error("other keys have their own window")
	}
	if l.RetryAfter("a") <= 0 {
		t.Error("limited key should report a retry delay")
	}
	if got := l.RetryAfter("b"); got != 0 {
		t.Errorf("RetryAfter for key under limit: got %v, want 0", got)
	}
}

func TestLimiter_WindowExpires(t *testing.T) {
	l := New(1, time.Minute)
	defer l.Stop()

	now := time.Now()
	l.now = func() time.Time { return now }

	if !l.Allow("a") {
		t.Fatal("first request should be allowed")
	}
	if l.Allow("a") {
		t.Fatal("second request should be limited")
	}

	now = now.Add(2 * time.Minute)
	if !l.Allow("a") {
		t.Error("request after window should be allowed")
	}
}

func TestLimiter_NonPositiveWindow(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		l := New(1, d)
		if l.duration != DefaultWindow || l.cleanup != 2*DefaultWindow {
			t.Errorf("New(1, %v): window %v cleanup %v", d, l.duration, l.cleanup)
		}
		if !l.Allow("a") || l.Allow("a") {
			t.Errorf("New(1, %v): expected one request per window", d)
		}
		l.Stop()
	}
}

func TestLimiter_StopTwice(t *testing.T) {
	l := New(1, time.Minute)
	l.Stop()
	l.Stop()
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "10.0.0.1:5000", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": " 5.6.7.8 "}, "10.0.0.1:5000", "5.6.7.8"},
		{"remote with port", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"remote without port", nil, "9.9.9.9", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLimiter_RetryAfter(t *testing.T) {
	l := New(1, time.Minute)
	defer l.Stop()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	if got := l.RetryAfter("a"); got != 0 {
		t.Errorf("unseen key: got %v, want 0", got)
	}
	l.Allow("a")
	l.now = func() time.Time { return base.Add(20 * time.Second) }
	if got := l.RetryAfter("a"); got != 40*time.Second {
		t.Errorf("RetryAfter: got %v, want 40s", got)
	}
}
