// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

const devSecret = "dev-only-change-me-please-0123456789ABCDEF"

// appConfigKeys defines the configuration keys for TravelSync.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, jwt_secret, etc.
//   - Environment variables: TRAVELSYNC_MONGO_URI, TRAVELSYNC_JWT_SECRET, etc.
//   - Command-line flags: --mongo_uri, --jwt_secret, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "travelsync", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	{Name: "jwt_secret", Default: devSecret, Desc: "HS256 secret for bearer tokens (must be strong in production)"},
	{Name: "session_key", Default: devSecret, Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "travelsync-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "168h", Desc: "Session cookie lifetime"},

	{Name: "cors_allowed_origins", Default: "*", Desc: "Comma-separated allowed origins ('*' allows any)"},

	// WebSocket sessions
	{Name: "ws_send_buffer", Default: 64, Desc: "Outbound frames queued per session before frames are dropped"},
	{Name: "ws_write_timeout", Default: "10s", Desc: "Deadline for a single websocket write"},
	{Name: "ws_pong_timeout", Default: "60s", Desc: "Close a session after this long without a pong"},
	{Name: "ws_max_message_bytes", Default: 16384, Desc: "Largest accepted inbound frame"},
	{Name: "ws_event_rate", Default: "20", Desc: "Inbound events per second per session (0 disables)"},
	{Name: "ws_event_burst", Default: 40, Desc: "Inbound event burst per session"},

	{Name: "history_limit", Default: 100, Desc: "Messages sent to a session when it joins a group"},

	// Alerts
	{Name: "off_route_threshold", Default: "0.01", Desc: "Lat/lng delta in degrees before a deviation alert"},
	{Name: "late_threshold", Default: "8m", Desc: "ETA above which a delay alert is raised"},

	// OpenRouteService
	{Name: "ors_api_key", Default: "", Desc: "OpenRouteService API key (blank disables ETA)"},
	{Name: "ors_base_url", Default: "https://api.openrouteservice.org", Desc: "OpenRouteService base URL"},

	{Name: "connect_rate_limit", Default: 30, Desc: "Websocket connection attempts per IP per window"},
	{Name: "connect_rate_window", Default: "1m", Desc: "Window for connect_rate_limit"},

	{Name: "presence_sweep_interval", Default: "5m", Desc: "How often stale online flags are cleared (0 disables)"},
	{Name: "presence_stale_after", Default: "30m", Desc: "Online flags untouched this long are cleared when no session is live"},

	{Name: "join_requires_membership", Default: false, Desc: "Refuse joinGroup without an existing membership"},
	{Name: "metrics_enabled", Default: true, Desc: "Serve Prometheus metrics at /metrics"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, TRAVELSYNC_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "TRAVELSYNC", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	offRoute, err := parseFloat("off_route_threshold", appValues.String("off_route_threshold"))
	if err != nil {
		return nil, AppConfig{}, err
	}
	eventRate, err := parseFloat("ws_event_rate", appValues.String("ws_event_rate"))
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		JWTSecret:     appValues.String("jwt_secret"),
		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 7*24*time.Hour),

		CORSAllowedOrigins: splitList(appValues.String("cors_allowed_origins")),

		WSSendBuffer:      appValues.Int("ws_send_buffer"),
		WSWriteTimeout:    appValues.Duration("ws_write_timeout", 10*time.Second),
		WSPongTimeout:     appValues.Duration("ws_pong_timeout", 60*time.Second),
		WSMaxMessageBytes: int64(appValues.Int("ws_max_message_bytes")),
		WSEventRate:       eventRate,
		WSEventBurst:      appValues.Int("ws_event_burst"),

		HistoryLimit: appValues.Int("history_limit"),

		OffRouteThreshold: offRoute,
		LateThreshold:     appValues.Duration("late_threshold", 8*time.Minute),

		ORSAPIKey:  appValues.String("ors_api_key"),
		ORSBaseURL: appValues.String("ors_base_url"),

		ConnectRateLimit:  appValues.Int("connect_rate_limit"),
		ConnectRateWindow: appValues.Duration("connect_rate_window", time.Minute),

		PresenceSweepInterval: appValues.Duration("presence_sweep_interval", 5*time.Minute),
		PresenceStaleAfter:    appValues.Duration("presence_stale_after", 30*time.Minute),

		JoinRequiresMembership: appValues.Bool("join_requires_membership"),
		MetricsEnabled:         appValues.Bool("metrics_enabled"),
	}

	return coreCfg, appCfg, nil
}

func parseFloat(key, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// TravelSync validates the MongoDB URI format to catch configuration errors
// early, before attempting to connect, and refuses the built-in development
// secrets in production.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return validateApp(coreCfg.Env, appCfg)
}

func validateApp(env string, appCfg AppConfig) error {
	var problems []error

	if strings.TrimSpace(appCfg.JWTSecret) == "" {
		problems = append(problems, errors.New("jwt_secret is required"))
	}
	if env == "prod" {
		if appCfg.JWTSecret == devSecret {
			problems = append(problems, errors.New("jwt_secret must be changed in production"))
		}
		if appCfg.SessionKey == devSecret {
			problems = append(problems, errors.New("session_key must be changed in production"))
		}
	}
	if appCfg.WSSendBuffer <= 0 {
		problems = append(problems, errors.New("ws_send_buffer must be positive"))
	}
	if appCfg.WSMaxMessageBytes <= 0 {
		problems = append(problems, errors.New("ws_max_message_bytes must be positive"))
	}
	if appCfg.WSPongTimeout <= 0 || appCfg.WSWriteTimeout <= 0 {
		problems = append(problems, errors.New("ws_pong_timeout and ws_write_timeout must be positive"))
	}
	if appCfg.WSEventRate < 0 {
		problems = append(problems, errors.New("ws_event_rate must not be negative"))
	}
	if appCfg.HistoryLimit <= 0 {
		problems = append(problems, errors.New("history_limit must be positive"))
	}
	if appCfg.OffRouteThreshold <= 0 {
		problems = append(problems, errors.New("off_route_threshold must be positive"))
	}
	if appCfg.LateThreshold <= 0 {
		problems = append(problems, errors.New("late_threshold must be positive"))
	}
	if appCfg.ConnectRateLimit < 0 {
		problems = append(problems, errors.New("connect_rate_limit must not be negative"))
	}
	if appCfg.ConnectRateLimit > 0 && appCfg.ConnectRateWindow <= 0 {
		problems = append(problems, errors.New("connect_rate_window must be positive when connect_rate_limit is set"))
	}
	if appCfg.PresenceSweepInterval > 0 && appCfg.PresenceStaleAfter <= 0 {
		problems = append(problems, errors.New("presence_stale_after must be positive when the sweeper is enabled"))
	}

	return errors.Join(problems...)
}
