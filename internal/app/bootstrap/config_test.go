package bootstrap

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func validConfig() AppConfig {
	return AppConfig{
		MongoURI:              "mongodb://localhost:27017",
		JWTSecret:             "a-real-secret",
		SessionKey:            "a-real-session-key",
		WSSendBuffer:          64,
		WSWriteTimeout:        10 * time.Second,
		WSPongTimeout:         60 * time.Second,
		WSMaxMessageBytes:     16 << 10,
		WSEventRate:           20,
		HistoryLimit:          100,
		OffRouteThreshold:     0.01,
		LateThreshold:         8 * time.Minute,
		ConnectRateLimit:      30,
		ConnectRateWindow:     time.Minute,
		PresenceSweepInterval: 5 * time.Minute,
		PresenceStaleAfter:    30 * time.Minute,
	}
}

func TestValidateApp(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{name: "valid", env: "prod", mutate: func(*AppConfig) {}},
		{name: "dev secrets allowed in dev", env: "dev", mutate: func(c *AppConfig) {
			c.JWTSecret, c.SessionKey = devSecret, devSecret
		}},
		{name: "dev jwt secret in prod", env: "prod", mutate: func(c *AppConfig) { c.JWTSecret = devSecret }, wantErr: "jwt_secret must be changed"},
		{name: "dev session key in prod", env: "prod", mutate: func(c *AppConfig) { c.SessionKey = devSecret }, wantErr: "session_key must be changed"},
		{name: "empty jwt secret", env: "dev", mutate: func(c *AppConfig) { c.JWTSecret = " " }, wantErr: "jwt_secret is required"},
		{name: "zero send buffer", env: "dev", mutate: func(c *AppConfig) { c.WSSendBuffer = 0 }, wantErr: "ws_send_buffer"},
		{name: "zero history", env: "dev", mutate: func(c *AppConfig) { c.HistoryLimit = 0 }, wantErr: "history_limit"},
		{name: "negative threshold", env: "dev", mutate: func(c *AppConfig) { c.OffRouteThreshold = -1 }, wantErr: "off_route_threshold"},
		{name: "zero late threshold", env: "dev", mutate: func(c *AppConfig) { c.LateThreshold = 0 }, wantErr: "late_threshold"},
		{name: "negative event rate", env: "dev", mutate: func(c *AppConfig) { c.WSEventRate = -1 }, wantErr: "ws_event_rate"},
		{name: "sweeper without stale window", env: "dev", mutate: func(c *AppConfig) { c.PresenceStaleAfter = 0 }, wantErr: "presence_stale_after"},
		{name: "zero connect window", env: "dev", mutate: func(c *AppConfig) { c.ConnectRateWindow = 0 }, wantErr: "connect_rate_window"},
		{name: "connect limit disabled", env: "dev", mutate: func(c *AppConfig) {
			c.ConnectRateLimit, c.ConnectRateWindow = 0, 0
		}},
		{name: "sweeper disabled", env: "dev", mutate: func(c *AppConfig) {
			c.PresenceSweepInterval, c.PresenceStaleAfter = 0, 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := validateApp(tt.env, cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateApp_ReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.WSSendBuffer = 0
	cfg.HistoryLimit = 0

	err := validateApp("dev", cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"ws_send_buffer", "history_limit"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"*", []string{"*"}},
		{" https://a.example , ,https://b.example ", []string{"https://a.example", "https://b.example"}},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFloat(t *testing.T) {
	if v, err := parseFloat("k", " 0.01 "); err != nil || v != 0.01 {
		t.Errorf("parseFloat: got %v, %v", v, err)
	}
	if _, err := parseFloat("off_route_threshold", "abc"); err == nil || !strings.Contains(err.Error(), "off_route_threshold") {
		t.Errorf("expected keyed error, got %v", err)
	}
}
