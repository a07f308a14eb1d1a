// Package app is the composition root: it turns an AppConfig into a wired planner.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/i474232898/fieldwork-weather-planner/internal/auth"
	"github.com/i474232898/fieldwork-weather-planner/internal/cache"
	"github.com/i474232898/fieldwork-weather-planner/internal/config"
	"github.com/i474232898/fieldwork-weather-planner/internal/metrics"
	"github.com/i474232898/fieldwork-weather-planner/internal/planner"
	"github.com/i474232898/fieldwork-weather-planner/internal/retry"
	"github.com/i474232898/fieldwork-weather-planner/internal/scheduler"
	"github.com/i474232898/fieldwork-weather-planner/internal/store"
	"github.com/i474232898/fieldwork-weather-planner/internal/tasks"
	"github.com/i474232898/fieldwork-weather-planner/internal/weather"
	"github.com/i474232898/fieldwork-weather-planner/internal/weather/providers"
)

// Options overrides process-wide collaborators, mostly for tests.
type Options struct {
	Clock      clockwork.Clock
	Metrics    *metrics.Metrics // nil registers fresh collectors with Prometheus
	HTTPClient *http.Client
	Geocoder   weather.GeocodeProvider
	Forecast   weather.ForecastProvider
	Cities     weather.CitySearcher
}

// App holds everything a server or CLI process needs.
type App struct {
	Config    *config.AppConfig
	Logger    *log.Logger
	Metrics   *metrics.Metrics
	Cache     *cache.Cache // nil when caching is disabled
	Tasks     tasks.Store
	Service   *planner.Service
	Tokens    *auth.Tokens
	Scheduler *scheduler.Scheduler

	closers []io.Closer
}

// New wires the application. Callers must Close the returned App.
func New(ctx context.Context, cfg *config.AppConfig, logger *log.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	a.Metrics = opts.Metrics
	if a.Metrics == nil {
		a.Metrics = metrics.NewMetrics()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	if err := a.openCache(ctx, opts.Clock); err != nil {
		return nil, a.fail(err)
	}
	if err := a.openTasks(ctx); err != nil {
		return nil, a.fail(err)
	}

	geocoder, cities, err := a.geocoder(opts)
	if err != nil {
		return nil, a.fail(err)
	}
	forecastProvider := opts.Forecast
	if forecastProvider == nil {
		forecastProvider = a.forecastProvider(opts.HTTPClient)
	}

	client := weather.ClientConfig{
		Cache:        a.Cache,
		CacheTTL:     cfg.CacheTTL,
		CachePrefix:  cfg.CacheNamespace,
		CacheVersion: cfg.CacheVersion,
		Retry: []retry.Option{
			retry.WithMaxAttempts(cfg.RetryMaxAttempts),
			retry.WithInitialDelay(cfg.RetryInitialDelay),
			retry.WithMaxDelay(cfg.RetryMaxDelay),
			retry.WithShouldRetry(providers.IsRetryable),
			retry.WithClock(opts.Clock),
		},
		Logger:  logger,
		Metrics: a.Metrics,
	}
	geo := weather.NewGeoResolver(geocoder, client)
	forecast := weather.NewForecastClient(forecastProvider, client)

	plannerOpts := []planner.Option{
		planner.WithClock(opts.Clock),
		planner.WithDefaultCity(cfg.DefaultCity, weather.Coordinates{Lat: cfg.DefaultLat, Lon: cfg.DefaultLon}),
		planner.WithGeocodeTimeout(cfg.GeocodeTimeout),
		planner.WithLogger(logger),
		planner.WithMetrics(a.Metrics),
	}
	a.Service = planner.NewService(planner.ServiceConfig{
		Tasks:       a.Tasks,
		Auth:        auth.ContextStore{},
		Aggregator:  planner.NewAggregator(geo, forecast, plannerOpts...),
		Rescheduler: planner.NewRescheduler(geo, forecast, plannerOpts...),
		Cities:      cities,
		Clock:       opts.Clock,
		Logger:      logger,
	})
	a.Tokens = auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL, opts.Clock)

	var purger cache.Purger
	if a.Cache != nil {
		purger, _ = a.Cache.Store().(cache.Purger)
	}
	a.Scheduler = scheduler.New(cfg.WarmCityList(), cfg.WarmInterval, a.Service, purger, opts.Clock, logger)

	return a, nil
}

func (a *App) openCache(ctx context.Context, clock clockwork.Clock) error {
	var s cache.Store
	switch a.Config.CacheBackend {
	case "none":
		return nil
	case "sqlite":
		sqlStore, err := cache.OpenSQLite(ctx, a.Config.CacheSQLitePath, clock)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		a.closers = append(a.closers, sqlStore)
		s = sqlStore
	case "redis":
		redisStore := cache.NewRedisStore(a.Config.RedisAddr, a.Config.RedisPassword, a.Config.RedisDB)
		if err := redisStore.Ping(ctx); err != nil {
			// Lookups fall through to the providers while Redis is away.
			a.Logger.Warn("redis unreachable, cache will pass through", "addr", a.Config.RedisAddr, "err", err)
		}
		a.closers = append(a.closers, redisStore)
		s = redisStore
	default:
		s = cache.NewMemoryStore(clock)
	}

	a.Cache = cache.New(s,
		cache.WithClock(clock),
		cache.WithLogger(a.Logger),
		cache.WithMetrics(a.Metrics),
	)
	return nil
}

func (a *App) openTasks(ctx context.Context) error {
	switch a.Config.TaskStore {
	case "sqlite", "postgres":
		sqlStore, err := store.OpenSQL(ctx, a.Config.TaskStoreDSN)
		if err != nil {
			return fmt.Errorf("open task store: %w", err)
		}
		a.closers = append(a.closers, sqlStore)
		a.Tasks = sqlStore
	default:
		a.Tasks = store.NewMemoryStore()
	}

	if a.Config.SeedFile == "" {
		return nil
	}
	n, err := store.Seed(ctx, a.Tasks, a.Config.SeedFile)
	if err != nil {
		return fmt.Errorf("seed tasks: %w", err)
	}
	if n > 0 {
		a.Logger.Info("seeded tasks", "count", n, "file", a.Config.SeedFile)
	}
	return nil
}

func (a *App) geocoder(opts Options) (weather.GeocodeProvider, weather.CitySearcher, error) {
	nominatim := providers.NewNominatimProvider(opts.HTTPClient, a.Config.NominatimURL, a.Config.UserAgent)

	cities := opts.Cities
	if cities == nil {
		cities = nominatim
	}
	if opts.Geocoder != nil {
		return opts.Geocoder, cities, nil
	}

	if a.Config.Geocoder == "google" {
		google, err := providers.NewGoogleGeocoder(a.Config.GoogleAPIKey)
		if err != nil {
			return nil, nil, err
		}
		return google, cities, nil
	}
	return nominatim, cities, nil
}

// forecastProvider chains WeatherAPI.com after Open-Meteo when a key is configured.
func (a *App) forecastProvider(client *http.Client) weather.ForecastProvider {
	openMeteo := providers.NewOpenMeteoProvider(client, a.Config.OpenMeteoURL)
	if a.Config.WeatherAPIKey == "" {
		return openMeteo
	}
	return weather.NewFallbackForecast(a.Logger,
		openMeteo,
		providers.NewWeatherAPIProvider(client, a.Config.WeatherAPIKey, ""),
	)
}

func (a *App) fail(err error) error {
	return errors.Join(err, a.Close())
}

// Close releases stores in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
