package weather

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/i474232898/fieldwork-weather-planner/internal/cache"
	"github.com/i474232898/fieldwork-weather-planner/internal/common"
	"github.com/i474232898/fieldwork-weather-planner/internal/retry"
)

// GeoResolver turns city names into coordinates through a cached, retried provider.
type GeoResolver struct {
	provider GeocodeProvider
	lookup   func(ctx context.Context, city string) (Coordinates, error)
	logger   *log.Logger
}

// NewGeoResolver wraps provider with retries and, when cfg.Cache is set, memoization keyed by city.
func NewGeoResolver(provider GeocodeProvider, cfg ClientConfig) *GeoResolver {
	logger := cfg.logger().With("component", "geo", "provider", provider.Name())
	retryOpts := cfg.retryOptions("geocode", logger)

	geocode := func(ctx context.Context, city string) (Coordinates, error) {
		return retry.Do(ctx, func(ctx context.Context, _ int) (Coordinates, error) {
			coords, err := provider.Geocode(ctx, city)
			cfg.Metrics.ProviderRequest(provider.Name(), err)
			return coords, err
		}, retryOpts...)
	}

	opts := append(cfg.cacheOptions("geo"), cache.WithKeyFunc(func(args []any) string {
		return common.CityKey(args[0].(string))
	}))

	return &GeoResolver{
		provider: provider,
		lookup:   cache.Wrap(cfg.Cache, "geocode", geocode, opts...),
		logger:   logger,
	}
}

// Resolve returns nil when the city cannot be resolved; it never fails.
func (g *GeoResolver) Resolve(ctx context.Context, city string) *Coordinates {
	city = common.NormalizeCity(city)
	if city == "" {
		return nil
	}
	coords, err := g.lookup(ctx, city)
	if err != nil {
		g.logger.Warn("geocode failed", "city", city, "err", err)
		return nil
	}
	return &coords
}
