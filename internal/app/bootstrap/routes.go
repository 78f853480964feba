// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	healthfeature "github.com/dalemusser/travelsync/internal/app/features/health"
	realtimefeature "github.com/dalemusser/travelsync/internal/app/features/realtime"
	"github.com/dalemusser/travelsync/internal/app/system/auth"
	"github.com/dalemusser/travelsync/internal/app/system/metrics"
	"github.com/dalemusser/travelsync/internal/app/system/tokenauth"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. At this point you have access to:
//   - coreCfg: WAFFLE core configuration (ports, env, timeouts, etc.)
//   - appCfg: app-specific configuration defined in AppConfig
//   - deps: the Mongo client and the realtime runtime built in Startup
//   - logger: the fully configured zap.Logger for this app
//
// TravelSync mounts the websocket endpoint, the health check and, when
// enabled, Prometheus metrics.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	rt := deps.Realtime
	if rt == nil || rt.Service == nil {
		return nil, errors.New("build handler: realtime runtime not started")
	}

	// Bearer tokens first; browser clients fall back to the session cookie.
	verifier, err := tokenauth.NewVerifier(appCfg.JWTSecret)
	if err != nil {
		logger.Error("token verifier init failed", zap.Error(err))
		return nil, err
	}
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}
	authChain := tokenauth.Chain{verifier, sessionMgr}

	r := chi.NewRouter()
	r.Use(corsHandler(appCfg.CORSAllowedOrigins))

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, rt.Hub, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	wsHandler := realtimefeature.NewHandler(rt.Service, authChain, rt.Limiter, appCfg.CORSAllowedOrigins, rt.Metrics, logger.Named("ws"))
	r.Mount("/ws", realtimefeature.Routes(wsHandler))

	if appCfg.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler(rt.Registry))
	}

	return r, nil
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the caller's origin; "*" cannot be combined with credentials.
		opts.AllowOriginFunc = func(string) bool { return true }
	} else {
		opts.AllowedOrigins = origins
	}
	return cors.New(opts).Handler
}
