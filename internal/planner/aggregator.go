package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/i474232898/fieldwork-weather-planner/internal/common"
	"github.com/i474232898/fieldwork-weather-planner/internal/metrics"
	"github.com/i474232898/fieldwork-weather-planner/internal/tasks"
	"github.com/i474232898/fieldwork-weather-planner/internal/weather"
)

const (
	DefaultCity           = "Seattle"
	DefaultGeocodeTimeout = 2500 * time.Millisecond
)

// ErrIncompleteSeries reports that some requested dates were filled with placeholders.
var ErrIncompleteSeries = errors.New("forecast series is missing days")

// DefaultCoords is used whenever a city cannot be resolved in time.
var DefaultCoords = weather.Coordinates{Lat: 47.6062, Lon: -122.3321}

// Resolver is satisfied by *weather.GeoResolver.
type Resolver interface {
	Resolve(ctx context.Context, city string) *weather.Coordinates
}

// Forecaster is satisfied by *weather.ForecastClient.
type Forecaster interface {
	FetchRange(ctx context.Context, coords weather.Coordinates, start, end string) (weather.ForecastSeries, error)
}

// Outlook is the classified week for the selected city plus every city with tasks in the week.
type Outlook struct {
	Week      int                               `json:"week"`
	WeekStart string                            `json:"weekStart"`
	WeekEnd   string                            `json:"weekEnd"`
	City      string                            `json:"city"`
	Days      []weather.DailyWeather            `json:"days"`
	CityDays  map[string][]weather.DailyWeather `json:"cityDays"`
	Cities    []string                          `json:"cities"`
	Degraded  bool                              `json:"degraded"`
}

type settings struct {
	clock          clockwork.Clock
	defaultCity    string
	fallback       weather.Coordinates
	geocodeTimeout time.Duration
	logger         *log.Logger
	metrics        *metrics.Metrics
}

// Option configures an Aggregator or Rescheduler.
type Option func(*settings)

func WithClock(c clockwork.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithDefaultCity sets the city whose fallback coordinates are never reported as degraded.
func WithDefaultCity(city string, coords weather.Coordinates) Option {
	return func(s *settings) {
		s.defaultCity = city
		s.fallback = coords
	}
}

func WithGeocodeTimeout(d time.Duration) Option {
	return func(s *settings) { s.geocodeTimeout = d }
}

func WithLogger(l *log.Logger) Option {
	return func(s *settings) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

func newSettings(opts []Option) settings {
	s := settings{
		clock:          clockwork.NewRealClock(),
		defaultCity:    DefaultCity,
		fallback:       DefaultCoords,
		geocodeTimeout: DefaultGeocodeTimeout,
		logger:         log.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.geocodeTimeout <= 0 {
		s.geocodeTimeout = DefaultGeocodeTimeout
	}
	return s
}

// Aggregator assembles weekly outlooks. It absorbs provider failures and reports them as degraded.
type Aggregator struct {
	geo      Resolver
	forecast Forecaster
	settings
}

func NewAggregator(geo Resolver, forecast Forecaster, opts ...Option) *Aggregator {
	s := newSettings(opts)
	s.logger = s.logger.With("component", "aggregator")
	return &Aggregator{geo: geo, forecast: forecast, settings: s}
}

// Aggregate never fails: unresolvable cities and missing forecasts become placeholder days.
func (a *Aggregator) Aggregate(ctx context.Context, city string, weekOffset int, allTasks []tasks.Task) Outlook {
	started := a.clock.Now()
	defer func() { a.metrics.ObserveAggregate(a.clock.Since(started).Seconds()) }()

	week := ComputeWeek(started, weekOffset)
	dates := week.ISODays()
	city = common.NormalizeCity(city)
	if city == "" {
		city = a.defaultCity
	}

	out := Outlook{
		Week:      weekOffset,
		WeekStart: week.StartISO(),
		WeekEnd:   week.EndISO(),
		City:      city,
		CityDays:  map[string][]weather.DailyWeather{},
		Cities:    []string{},
	}

	coords, ok := a.resolveWithDeadline(ctx, city)
	if !ok {
		coords = a.fallback
		if !common.SameCity(city, a.defaultCity) {
			a.logger.Warn("using fallback coordinates", "city", city)
			out.Degraded = true
		}
	}

	days, err := a.classifyWeek(ctx, coords, dates)
	if err != nil {
		a.logger.Warn("forecast unavailable", "city", city, "err", err)
		out.Degraded = true
	}
	out.Days = days

	cities := taskCities(allTasks, week)
	if len(cities) > 0 {
		out.CityDays = a.fanOut(ctx, cities, dates)
		out.Cities = cities
	}

	if out.Degraded {
		a.metrics.Degraded("outlook")
	}
	return out
}

// resolveWithDeadline races the lookup against the geocode timeout. The lookup keeps
// running on a detached context after the deadline so it can still fill the cache.
func (a *Aggregator) resolveWithDeadline(ctx context.Context, city string) (weather.Coordinates, bool) {
	result := make(chan *weather.Coordinates, 1)
	detached := context.WithoutCancel(ctx)
	go func() {
		result <- a.geo.Resolve(detached, city)
	}()

	select {
	case coords := <-result:
		if coords == nil {
			return weather.Coordinates{}, false
		}
		return *coords, true
	case <-a.clock.After(a.geocodeTimeout):
		a.logger.Warn("geocode deadline exceeded", "city", city, "timeout", a.geocodeTimeout)
		return weather.Coordinates{}, false
	case <-ctx.Done():
		return weather.Coordinates{}, false
	}
}

// classifyWeek always returns one day per date; the error reports why placeholders were used.
func (a *Aggregator) classifyWeek(ctx context.Context, coords weather.Coordinates, dates []string) ([]weather.DailyWeather, error) {
	series, err := a.forecast.FetchRange(ctx, coords, dates[0], dates[len(dates)-1])
	if err != nil {
		return placeholders(dates), err
	}
	days, err := alignDays(series, dates)
	if days == nil {
		return placeholders(dates), err
	}
	return days, err
}

func (a *Aggregator) fanOut(ctx context.Context, cities []string, dates []string) map[string][]weather.DailyWeather {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out = make(map[string][]weather.DailyWeather, len(cities))
	)

	for _, c := range cities {
		wg.Add(1)
		go func(city string) {
			defer wg.Done()

			coords := a.fallback
			if resolved := a.geo.Resolve(ctx, city); resolved != nil {
				coords = *resolved
			} else {
				a.logger.Warn("using fallback coordinates", "city", city)
			}

			days, err := a.classifyWeek(ctx, coords, dates)
			if err != nil {
				a.logger.Warn("city forecast unavailable", "city", city, "err", err)
				a.metrics.Degraded("city")
			}

			mu.Lock()
			out[city] = days
			mu.Unlock()
		}(c)
	}

	wg.Wait()
	return out
}

// taskCities returns the sorted distinct cities of tasks dated inside the week.
func taskCities(all []tasks.Task, week WeekWindow) []string {
	seen := make(map[string]bool)
	var cities []string
	for _, t := range all {
		city := common.NormalizeCity(t.City)
		if city == "" || !week.Contains(t.Date) || seen[city] {
			continue
		}
		seen[city] = true
		cities = append(cities, city)
	}
	sort.Strings(cities)
	return cities
}

func placeholders(dates []string) []weather.DailyWeather {
	days := make([]weather.DailyWeather, len(dates))
	for i, d := range dates {
		days[i] = weather.PlaceholderDay(d)
	}
	return days
}

// alignDays orders the classified series by the requested dates. Dates the provider
// skipped become placeholders and are reported with ErrIncompleteSeries alongside the
// days; a series sharing no date with the request is malformed and yields no days.
func alignDays(series weather.ForecastSeries, dates []string) ([]weather.DailyWeather, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}
	byDate := make(map[string]weather.DailyWeather, len(series.Dates))
	for _, d := range series.Days() {
		byDate[d.Date] = d
	}

	matched := 0
	days := make([]weather.DailyWeather, len(dates))
	for i, date := range dates {
		d, ok := byDate[date]
		if !ok {
			days[i] = weather.PlaceholderDay(date)
			continue
		}
		days[i] = d
		matched++
	}
	if matched == 0 {
		return nil, fmt.Errorf("%w: no days within %s..%s", weather.ErrMalformedSeries, dates[0], dates[len(dates)-1])
	}
	if missing := len(dates) - matched; missing > 0 {
		return days, fmt.Errorf("%w: %d of %d", ErrIncompleteSeries, missing, len(dates))
	}
	return days, nil
}
