package monitoring

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

const HEALTHCHECK_INTERVAL = 15 * time.Second

type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

type Config struct {
	Interval time.Duration
	Clock    clockwork.Clock
	Logger   *slog.Logger
	// OnChange, if set, runs whenever the health state flips.
	OnChange func(healthy bool)
}

// MonitorOracleHealth probes checker immediately and then every interval,
// storing the result in healthy until ctx ends. Transitions are logged.
func MonitorOracleHealth(ctx context.Context, checker HealthChecker, healthy *atomic.Bool, cfg Config) {
	if cfg.Interval <= 0 {
		cfg.Interval = HEALTHCHECK_INTERVAL
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	check := func(first bool) {
		isHealthy := checker.HealthCheck(ctx)
		if ctx.Err() != nil {
			return
		}
		was := healthy.Swap(isHealthy)
		if !first && was == isHealthy {
			return
		}
		if isHealthy {
			cfg.Logger.Info("[HealthCheck] Oracle is healthy")
		} else {
			cfg.Logger.Warn("[HealthCheck] Oracle is unhealthy")
		}
		if cfg.OnChange != nil {
			cfg.OnChange(isHealthy)
		}
	}

	check(true)

	ticker := cfg.Clock.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			check(false)
		}
	}
}
