package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ErrInvalidConfig wraps every validation failure returned by Load.
var ErrInvalidConfig = errors.New("invalid config")

const envPrefix = "PLANNER_"

type AppConfig struct {
	Port        string        `koanf:"port"`
	HTTPTimeout time.Duration `koanf:"http_timeout"`

	LogLevel string `koanf:"log_level"`
	LogFile  string `koanf:"log_file"` // empty logs to stderr only

	DefaultCity    string        `koanf:"default_city"`
	DefaultLat     float64       `koanf:"default_lat"`
	DefaultLon     float64       `koanf:"default_lon"`
	GeocodeTimeout time.Duration `koanf:"geocode_timeout"`

	// Geocoder selects the geocoding backend: nominatim or google.
	Geocoder     string `koanf:"geocoder"`
	GoogleAPIKey string `koanf:"google_api_key"`
	NominatimURL string `koanf:"nominatim_url"`
	UserAgent    string `koanf:"user_agent"`

	OpenMeteoURL string `koanf:"open_meteo_url"`
	// WeatherAPIKey enables WeatherAPI.com as a secondary forecast source.
	WeatherAPIKey string `koanf:"weatherapi_api_key"`

	// CacheBackend is one of memory, sqlite, redis or none.
	CacheBackend    string        `koanf:"cache_backend"`
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	CacheNamespace  string        `koanf:"cache_namespace"`
	CacheVersion    string        `koanf:"cache_version"`
	CacheSQLitePath string        `koanf:"cache_sqlite_path"`
	RedisAddr       string        `koanf:"redis_addr"`
	RedisPassword   string        `koanf:"redis_password"`
	RedisDB         int           `koanf:"redis_db"`

	// TaskStore is one of memory, sqlite or postgres.
	TaskStore    string `koanf:"task_store"`
	TaskStoreDSN string `koanf:"task_store_dsn"`
	SeedFile     string `koanf:"seed_file"`

	RetryMaxAttempts  int           `koanf:"retry_max_attempts"`
	RetryInitialDelay time.Duration `koanf:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `koanf:"retry_max_delay"`

	// WarmInterval of zero disables the cache warmer.
	WarmInterval time.Duration `koanf:"warm_interval"`
	WarmCities   string        `koanf:"warm_cities"` // comma separated

	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *AppConfig {
	return &AppConfig{
		Port:        "8080",
		HTTPTimeout: 10 * time.Second,

		LogLevel: "info",

		DefaultCity:    "Seattle",
		DefaultLat:     47.6062,
		DefaultLon:     -122.3321,
		GeocodeTimeout: 2500 * time.Millisecond,

		Geocoder:     "nominatim",
		NominatimURL: "https://nominatim.openstreetmap.org",
		UserAgent:    "fieldwork-weather-planner/1.0",

		OpenMeteoURL: "https://api.open-meteo.com/v1/forecast",

		CacheBackend:    "memory",
		CacheTTL:        30 * time.Minute,
		CacheNamespace:  "planner",
		CacheVersion:    "1",
		CacheSQLitePath: "data/cache.db",
		RedisAddr:       "localhost:6379",

		TaskStore:    "memory",
		TaskStoreDSN: "data/tasks.db",

		RetryMaxAttempts:  5,
		RetryInitialDelay: 200 * time.Millisecond,
		RetryMaxDelay:     5 * time.Second,

		WarmInterval: 0,

		TokenTTL: 24 * time.Hour,
	}
}

// Load layers defaults, an optional YAML file named by PLANNER_CONFIG and
// PLANNER_* environment variables, in that order of precedence.
func Load() (*AppConfig, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := *Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Port != "", "port must not be empty")
	check(c.HTTPTimeout > 0, "http_timeout must be positive")
	check(c.GeocodeTimeout > 0, "geocode_timeout must be positive")
	check(strings.TrimSpace(c.DefaultCity) != "", "default_city must not be empty")
	check(c.DefaultLat >= -90 && c.DefaultLat <= 90, "default_lat out of range")
	check(c.DefaultLon >= -180 && c.DefaultLon <= 180, "default_lon out of range")
	check(oneOf(c.Geocoder, "nominatim", "google"), "geocoder must be nominatim or google")
	check(c.Geocoder != "google" || c.GoogleAPIKey != "", "google_api_key is required for the google geocoder")
	check(oneOf(c.CacheBackend, "memory", "sqlite", "redis", "none"), "cache_backend must be memory, sqlite, redis or none")
	check(c.CacheBackend == "none" || c.CacheTTL > 0, "cache_ttl must be positive")
	check(oneOf(c.TaskStore, "memory", "sqlite", "postgres"), "task_store must be memory, sqlite or postgres")
	check(c.TaskStore == "memory" || c.TaskStoreDSN != "", "task_store_dsn is required for sql task stores")
	check(c.RetryMaxAttempts >= 1, "retry_max_attempts must be at least 1")
	check(c.RetryInitialDelay >= 0, "retry_initial_delay must not be negative")
	check(c.RetryMaxDelay >= 0, "retry_max_delay must not be negative")
	check(c.WarmInterval >= 0, "warm_interval must not be negative")
	check(c.JWTSecret != "", "jwt_secret must be set")

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// WarmCityList splits WarmCities on commas, dropping blanks.
func (c *AppConfig) WarmCityList() []string {
	var out []string
	for _, city := range strings.Split(c.WarmCities, ",") {
		if city = strings.TrimSpace(city); city != "" {
			out = append(out, city)
		}
	}
	return out
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
