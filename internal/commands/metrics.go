// internal/commands/metrics.go
package ragview

import (
	"context"

	"go.uber.org/zap"

	"github.com/mwiater/ragview/internal/appconfig"
	"github.com/mwiater/ragview/internal/metrics"
)

// startMetricsListener serves /metrics in the background while ctx is alive,
// when metrics are enabled and a listen address is configured.
func startMetricsListener(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger) {
	if !cfg.Metrics || cfg.MetricsListen == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsListen, logger); err != nil {
			logger.Warn("metrics listener stopped", zap.Error(err))
		}
	}()
}
