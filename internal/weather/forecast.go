package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/i474232898/fieldwork-weather-planner/internal/cache"
	"github.com/i474232898/fieldwork-weather-planner/internal/retry"
)

// ForecastClient fetches daily series through a cached, retried provider.
type ForecastClient struct {
	fetch func(ctx context.Context, coords Coordinates, start, end string) (ForecastSeries, error)
}

// NewForecastClient wraps provider with retries and, when cfg.Cache is set, memoization.
func NewForecastClient(provider ForecastProvider, cfg ClientConfig) *ForecastClient {
	logger := cfg.logger().With("component", "forecast", "provider", provider.Name())
	retryOpts := cfg.retryOptions("forecast", logger)

	fetchRange := func(ctx context.Context, coords Coordinates, start, end string) (ForecastSeries, error) {
		return retry.Do(ctx, func(ctx context.Context, _ int) (ForecastSeries, error) {
			series, err := provider.DailyRange(ctx, coords, start, end)
			if err == nil {
				err = series.Validate()
			}
			cfg.Metrics.ProviderRequest(provider.Name(), err)
			return series, err
		}, retryOpts...)
	}

	return &ForecastClient{
		fetch: cache.Wrap3(cfg.Cache, "fetchRange", fetchRange, cfg.cacheOptions("forecast")...),
	}
}

// FetchRange returns the forecast for the inclusive ISO date range [start, end].
func (f *ForecastClient) FetchRange(ctx context.Context, coords Coordinates, start, end string) (ForecastSeries, error) {
	series, err := f.fetch(ctx, coords, start, end)
	if err != nil {
		return ForecastSeries{}, fmt.Errorf("forecast %s..%s at %s: %w", start, end, coords, err)
	}
	return series, nil
}

// FallbackForecast tries each provider in order and returns the first success.
type FallbackForecast struct {
	providers []ForecastProvider
	logger    *log.Logger
}

func NewFallbackForecast(logger *log.Logger, providers ...ForecastProvider) *FallbackForecast {
	if logger == nil {
		logger = log.Default()
	}
	return &FallbackForecast{providers: providers, logger: logger}
}

func (f *FallbackForecast) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

func (f *FallbackForecast) DailyRange(ctx context.Context, coords Coordinates, start, end string) (ForecastSeries, error) {
	if len(f.providers) == 0 {
		return ForecastSeries{}, errors.New("no forecast providers configured")
	}

	var errs []error
	for _, p := range f.providers {
		series, err := p.DailyRange(ctx, coords, start, end)
		if err == nil {
			return series, nil
		}
		f.logger.Warn("forecast provider failed", "provider", p.Name(), "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return ForecastSeries{}, errors.Join(errs...)
}
