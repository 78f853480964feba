package realtime

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/travelsync/internal/app/system/metrics"
	"github.com/dalemusser/travelsync/internal/app/system/ratelimit"
	"github.com/dalemusser/travelsync/internal/app/system/timeouts"
	"github.com/dalemusser/travelsync/internal/app/system/tokenauth"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler upgrades authenticated requests to realtime sessions.
type Handler struct {
	Service *Service
	Auth    tokenauth.Authenticator
	Limiter *ratelimit.Limiter
	Metrics *metrics.Realtime
	Log     *zap.Logger

	upgrader websocket.Upgrader
}

// NewHandler constructs the websocket endpoint. limiter may be nil.
// allowedOrigins empty or containing "*" accepts any browser origin.
func NewHandler(svc *Service, auth tokenauth.Authenticator, limiter *ratelimit.Limiter, allowedOrigins []string, m *metrics.Realtime, logger *zap.Logger) *Handler {
	h := &Handler{
		Service: svc,
		Auth:    auth,
		Limiter: limiter,
		Metrics: m,
		Log:     logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients send no Origin.
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

// ServeWS handles GET /ws.
//
// Credentials are checked before the upgrade: a missing or bad token gets a
// plain 401 and no session is created.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ip := ratelimit.ClientIP(r)
	if h.Limiter != nil && !h.Limiter.Allow(ip) {
		h.Metrics.Reject("rate_limited")
		h.Log.Warn("realtime connect rate limited", zap.String("ip", ip))
		if d := h.Limiter.RetryAfter(ip); d > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
		}
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	userID, err := h.Auth.Authenticate(r)
	if err != nil {
		h.Metrics.Reject("unauthorized")
		h.Log.Info("realtime connect refused", zap.String("ip", ip), zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	user, err := h.Service.LookupUser(ctx, userID)
	cancel()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			h.Metrics.Reject("unknown_user")
			h.Log.Info("realtime connect refused: unknown user", zap.String("user_id", userID.Hex()))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.Log.Error("user lookup failed", zap.String("user_id", userID.Hex()), zap.Error(err))
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Metrics.Reject("upgrade_failed")
		h.Log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	h.Service.Serve(conn, user)
}
