package weather

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/i474232898/fieldwork-weather-planner/internal/cache"
	"github.com/i474232898/fieldwork-weather-planner/internal/metrics"
	"github.com/i474232898/fieldwork-weather-planner/internal/retry"
)

// ClientConfig bundles the resilience and observability settings shared by
// GeoResolver and ForecastClient.
type ClientConfig struct {
	Cache        *cache.Cache // nil disables memoization
	CacheTTL     time.Duration
	CachePrefix  string // prepended to the geo and forecast namespaces
	CacheVersion any
	Retry        []retry.Option
	Logger       *log.Logger
	Metrics      *metrics.Metrics
}

func (c ClientConfig) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}

func (c ClientConfig) cacheOptions(namespace string) []cache.Option {
	if c.CachePrefix != "" {
		namespace = c.CachePrefix + ":" + namespace
	}
	opts := []cache.Option{cache.WithNamespace(namespace)}
	if c.CacheTTL > 0 {
		opts = append(opts, cache.WithTTL(c.CacheTTL))
	}
	if c.CacheVersion != nil {
		opts = append(opts, cache.WithVersion(c.CacheVersion))
	}
	return opts
}

// retryOptions appends a hook that logs and counts every scheduled retry.
func (c ClientConfig) retryOptions(operation string, logger *log.Logger) []retry.Option {
	opts := make([]retry.Option, 0, len(c.Retry)+1)
	opts = append(opts, c.Retry...)
	return append(opts, retry.WithOnRetry(func(err error, attempt int, delay time.Duration) {
		c.Metrics.Retry(operation)
		logger.Debug("retrying", "operation", operation, "attempt", attempt, "delay", delay, "err", err)
	}))
}
