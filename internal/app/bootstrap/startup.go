// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/travelsync/internal/app/features/realtime"
	groupstore "github.com/dalemusser/travelsync/internal/app/store/groups"
	membershipstore "github.com/dalemusser/travelsync/internal/app/store/memberships"
	messagestore "github.com/dalemusser/travelsync/internal/app/store/messages"
	"github.com/dalemusser/travelsync/internal/app/store/queries/groupmembers"
	userstore "github.com/dalemusser/travelsync/internal/app/store/users"
	"github.com/dalemusser/travelsync/internal/app/system/hub"
	"github.com/dalemusser/travelsync/internal/app/system/metrics"
	"github.com/dalemusser/travelsync/internal/app/system/notify"
	"github.com/dalemusser/travelsync/internal/app/system/ratelimit"
	"github.com/dalemusser/travelsync/internal/app/system/routeinfo"
	"github.com/dalemusser/travelsync/internal/app/system/timeouts"
	"github.com/dalemusser/travelsync/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Runtime holds the long-lived realtime components built in Startup.
type Runtime struct {
	Hub      *hub.Hub
	Service  *realtime.Service
	Limiter  *ratelimit.Limiter
	Sweeper  *workers.PresenceSweep
	Metrics  *metrics.Realtime
	Registry *prometheus.Registry
}

// Startup builds the hub, the realtime service and its background workers
// after the database is connected and indexes are in place.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Realtime == nil {
		return errors.New("startup: realtime runtime not allocated")
	}
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("store timeouts overridden from environment", zap.Int("count", n))
	}

	db := deps.MongoDatabase
	rt := deps.Realtime
	rt.Hub = hub.New(logger.Named("hub"))

	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.Metrics = metrics.NewRealtime(rt.Registry, rt.Hub)

	var routes realtime.RouteProvider
	if appCfg.ORSAPIKey != "" {
		routes = routeinfo.New(appCfg.ORSBaseURL, appCfg.ORSAPIKey, &http.Client{Timeout: 5 * time.Second})
		logger.Info("route estimates enabled", zap.String("base_url", appCfg.ORSBaseURL))
	}

	members := membershipstore.New(db)
	rt.Service = realtime.NewService(realtime.Deps{
		Members:   members,
		Messages:  messagestore.New(db),
		Groups:    groupstore.New(db),
		Users:     userstore.New(db),
		Snapshots: groupmembers.NewLister(db),
		Routes:    routes,
		Hub:       rt.Hub,
		Metrics:   rt.Metrics,
	}, realtime.Config{
		HistoryLimit:           appCfg.HistoryLimit,
		SendBuffer:             appCfg.WSSendBuffer,
		WriteTimeout:           appCfg.WSWriteTimeout,
		PongTimeout:            appCfg.WSPongTimeout,
		MaxMessageBytes:        appCfg.WSMaxMessageBytes,
		JoinRequiresMembership: appCfg.JoinRequiresMembership,
		EventRate:              appCfg.WSEventRate,
		EventBurst:             appCfg.WSEventBurst,
	}, notify.NewPolicy(appCfg.OffRouteThreshold, appCfg.LateThreshold), logger.Named("realtime"))

	if appCfg.ConnectRateLimit > 0 {
		rt.Limiter = ratelimit.New(appCfg.ConnectRateLimit, appCfg.ConnectRateWindow)
	}

	rt.Sweeper = workers.NewPresenceSweep(members, rt.Hub, logger.Named("presence-sweep"),
		appCfg.PresenceSweepInterval, appCfg.PresenceStaleAfter)
	rt.Sweeper.Start()

	return nil
}
