// Package weathertest provides in-memory providers for tests.
package weathertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/i474232898/fieldwork-weather-planner/internal/common"
	"github.com/i474232898/fieldwork-weather-planner/internal/weather"
)

// ErrUnavailable is the default failure returned by the fakes.
var ErrUnavailable = errors.New("provider unavailable")

// Geocoder answers from a fixed table. Unknown cities fail with ErrUnavailable.
type Geocoder struct {
	mu     sync.Mutex
	Coords map[string]weather.Coordinates // keyed by common.CityKey
	Err    error                          // when set, every call fails
	Delay  time.Duration                  // simulated latency; honours ctx
	calls  map[string]int
}

func NewGeocoder(coords map[string]weather.Coordinates) *Geocoder {
	table := make(map[string]weather.Coordinates, len(coords))
	for city, c := range coords {
		table[common.CityKey(city)] = c
	}
	return &Geocoder{Coords: table, calls: make(map[string]int)}
}

func (g *Geocoder) Name() string { return "fake-geocoder" }

func (g *Geocoder) Geocode(ctx context.Context, city string) (weather.Coordinates, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[common.CityKey(city)]++
	delay, failure := g.Delay, g.Err
	coords, ok := g.Coords[common.CityKey(city)]
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return weather.Coordinates{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if failure != nil {
		return weather.Coordinates{}, failure
	}
	if !ok {
		return weather.Coordinates{}, ErrUnavailable
	}
	return coords, nil
}

// Calls returns how many times city was looked up.
func (g *Geocoder) Calls(city string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[common.CityKey(city)]
}

// Forecast serves series from a callback and fails for selected coordinates.
type Forecast struct {
	mu sync.Mutex
	// Series returns the series for a request; nil uses a dry, calm, mild week.
	Series func(coords weather.Coordinates, start, end string) (weather.ForecastSeries, error)
	// FailFor makes requests for these coordinates fail with ErrUnavailable.
	FailFor map[weather.Coordinates]bool
	calls   int
}

func (f *Forecast) Name() string { return "fake-forecast" }

func (f *Forecast) DailyRange(_ context.Context, coords weather.Coordinates, start, end string) (weather.ForecastSeries, error) {
	f.mu.Lock()
	f.calls++
	fail := f.FailFor[coords]
	seriesFn := f.Series
	f.mu.Unlock()

	if fail {
		return weather.ForecastSeries{}, ErrUnavailable
	}
	if seriesFn != nil {
		return seriesFn(coords, start, end)
	}
	return Uniform(start, end, 10, 3, 12)
}

// Calls returns the number of DailyRange calls.
func (f *Forecast) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Uniform returns a series with the same metrics for every day in [start, end].
func Uniform(start, end string, precip, wind, temp float64) (weather.ForecastSeries, error) {
	dates, err := DateRange(start, end)
	if err != nil {
		return weather.ForecastSeries{}, err
	}
	values := make([]float64, len(dates))
	for i := range values {
		values[i] = precip
	}
	return WithPrecip(dates, values, wind, temp), nil
}

// WithPrecip builds a series with the given per-day precipitation and constant wind and temperature.
func WithPrecip(dates []string, precip []float64, wind, temp float64) weather.ForecastSeries {
	s := weather.ForecastSeries{Dates: dates}
	for i := range dates {
		p, w, tc := precip[i], wind, temp
		s.Precip = append(s.Precip, &p)
		s.Wind = append(s.Wind, &w)
		s.Temp = append(s.Temp, &tc)
	}
	return s
}

// DateRange lists the ISO dates from start to end inclusive.
func DateRange(start, end string) ([]string, error) {
	from, err := time.Parse(weather.DateLayout, start)
	if err != nil {
		return nil, err
	}
	to, err := time.Parse(weather.DateLayout, end)
	if err != nil {
		return nil, err
	}
	var dates []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(weather.DateLayout))
	}
	return dates, nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
