// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - Request body size limits
//
// AppConfig carries everything the realtime service needs on top of that.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Bearer token verification (HS256 shared secret)
	JWTSecret string

	// Cookie session fallback for browser clients
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: travelsync-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime

	// Browser origins allowed to call the HTTP endpoints and open sockets.
	// Empty or "*" allows any origin.
	CORSAllowedOrigins []string

	// WebSocket session tuning
	WSSendBuffer      int
	WSWriteTimeout    time.Duration
	WSPongTimeout     time.Duration
	WSMaxMessageBytes int64
	WSEventRate       float64 // inbound events per second per session; 0 disables
	WSEventBurst      int

	// Chat history sent on join
	HistoryLimit int

	// Alert thresholds
	OffRouteThreshold float64       // degrees
	LateThreshold     time.Duration // ETA above this raises a delay alert

	// OpenRouteService directions (ETA); blank key disables ETA
	ORSAPIKey  string
	ORSBaseURL string

	// Per-IP connection attempt limit
	ConnectRateLimit  int
	ConnectRateWindow time.Duration

	// Stale presence sweeper; a zero interval disables it
	PresenceSweepInterval time.Duration
	PresenceStaleAfter    time.Duration

	// Refuse joinGroup for users without an existing membership.
	JoinRequiresMembership bool

	// Serve Prometheus metrics at /metrics.
	MetricsEnabled bool
}
