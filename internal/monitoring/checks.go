package monitoring

import (
	"context"
	"time"

	"gorm.io/gorm"
)

const defaultProbeTimeout = 2 * time.Second

// Pinger is the minimal interface a probe needs from a connection handle.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseCheck returns a readiness probe that pings the record store's
// database handle.
func DatabaseCheck(db *gorm.DB, timeout time.Duration) Check {
	return NewCheck("database", func(ctx context.Context) ProbeResult {
		start := time.Now()
		if db == nil {
			return ProbeResult{
				Status:   StatusDown,
				Details:  "database not configured",
				Duration: time.Since(start),
			}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return ResultFromError("database", err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultProbeTimeout))
		defer cancel()

		if err := sqlDB.PingContext(probeCtx); err != nil {
			return ResultFromError("database", err, time.Since(start))
		}

		return ProbeResult{Status: StatusUp, Duration: time.Since(start)}
	})
}

// RedisCheck returns a readiness probe for the cache, lock and limiter
// backend. Redis is load-bearing for the validation pipeline, so a failed
// ping is StatusDown, not degraded.
func RedisCheck(client Pinger, timeout time.Duration) Check {
	return NewCheck("redis", func(ctx context.Context) ProbeResult {
		start := time.Now()
		if client == nil {
			return ProbeResult{
				Status:   StatusDown,
				Details:  "redis not configured",
				Duration: time.Since(start),
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultProbeTimeout))
		defer cancel()

		if err := client.Ping(probeCtx); err != nil {
			return ResultFromError("redis", err, time.Since(start))
		}

		return ProbeResult{Status: StatusUp, Duration: time.Since(start)}
	})
}

func chooseTimeout(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}
