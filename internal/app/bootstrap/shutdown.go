// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown closes live sessions, stops background work, then disconnects
// MongoDB. Sessions go first so their offline writes still reach the store.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if rt := deps.Realtime; rt != nil {
		if rt.Sweeper != nil {
			rt.Sweeper.Stop()
		}
		if rt.Service != nil {
			logger.Info("closing realtime sessions", zap.Int("sessions", rt.Hub.Stats().Sessions))
			if err := rt.Service.Shutdown(ctx); err != nil {
				logger.Warn("realtime sessions did not drain", zap.Error(err))
			}
		}
		if rt.Limiter != nil {
			rt.Limiter.Stop()
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
