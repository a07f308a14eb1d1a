package planner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/fieldwork-weather-planner/internal/common"
	"github.com/i474232898/fieldwork-weather-planner/internal/logger"
	"github.com/i474232898/fieldwork-weather-planner/internal/metrics"
	"github.com/i474232898/fieldwork-weather-planner/internal/tasks"
	"github.com/i474232898/fieldwork-weather-planner/internal/weather"
	"github.com/i474232898/fieldwork-weather-planner/internal/weather/weathertest"
)

var (
	// Wednesday; the current week is 2025-01-06..2025-01-12.
	now = time.Date(2025, time.January, 8, 10, 0, 0, 0, time.UTC)

	seattle = weather.Coordinates{Lat: 47.6062, Lon: -122.3321}
	tacoma  = weather.Coordinates{Lat: 47.2529, Lon: -122.4443}
	boston  = weather.Coordinates{Lat: 42.3601, Lon: -71.0589}
)

type stubResolver struct {
	mu     sync.Mutex
	coords map[string]weather.Coordinates
	block  chan struct{}
	calls  []string
}

func newResolver(coords map[string]weather.Coordinates) *stubResolver {
	table := make(map[string]weather.Coordinates, len(coords))
	for k, v := range coords {
		table[common.CityKey(k)] = v
	}
	return &stubResolver{coords: table}
}

func (r *stubResolver) Resolve(_ context.Context, city string) *weather.Coordinates {
	r.mu.Lock()
	r.calls = append(r.calls, city)
	block := r.block
	c, ok := r.coords[common.CityKey(city)]
	r.mu.Unlock()

	if block != nil {
		<-block
	}
	if !ok {
		return nil
	}
	return &c
}

type fetchCall struct {
	coords     weather.Coordinates
	start, end string
}

type stubForecaster struct {
	mu     sync.Mutex
	series func(coords weather.Coordinates, start, end string) (weather.ForecastSeries, error)
	calls  []fetchCall
}

func (f *stubForecaster) FetchRange(_ context.Context, coords weather.Coordinates, start, end string) (weather.ForecastSeries, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{coords, start, end})
	f.mu.Unlock()
	if f.series == nil {
		return weathertest.Uniform(start, end, 10, 3, 12)
	}
	return f.series(coords, start, end)
}

func (f *stubForecaster) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

func testOptions(c clockwork.Clock) []Option {
	return []Option{
		WithClock(c),
		WithLogger(logger.Discard()),
		WithMetrics(metrics.NewMetricsForTesting()),
	}
}

func risks(days []weather.DailyWeather) []weather.RiskLevel {
	out := make([]weather.RiskLevel, len(days))
	for i, d := range days {
		out[i] = d.Risk
	}
	return out
}

// seriesOf builds a series whose classified risks equal levels.
func seriesOf(dates []string, levels ...weather.RiskLevel) weather.ForecastSeries {
	s := weather.ForecastSeries{Dates: dates}
	for _, level := range levels {
		precip, wind := 10.0, 3.0
		switch level {
		case weather.RiskMedium:
			precip = 50
		case weather.RiskHigh:
			precip, wind = 50, 12
		}
		s.Precip = append(s.Precip, weathertest.Float(precip))
		s.Wind = append(s.Wind, weathertest.Float(wind))
		s.Temp = append(s.Temp, weathertest.Float(12))
	}
	return s
}

func TestAggregate_EndToEnd(t *testing.T) {
	geo := newResolver(map[string]weather.Coordinates{"Seattle": seattle, "Tacoma": tacoma})
	fc := &stubForecaster{series: func(_ weather.Coordinates, start, end string) (weather.ForecastSeries, error) {
		dates, err := weathertest.DateRange(start, end)
		if err != nil {
			return weather.ForecastSeries{}, err
		}
		return weathertest.WithPrecip(dates, []float64{10, 10, 50, 10, 10, 10, 10}, 3, 12), nil
	}}
	agg := NewAggregator(geo, fc, testOptions(clockwork.NewFakeClockAt(now))...)

	all := []tasks.Task{
		{ID: "1", City: "Seattle", Date: "2025-01-07"},
		{ID: "2", City: " Tacoma ", Date: "2025-01-12"},
		{ID: "3", City: "Tacoma", Date: "2025-01-10"},
		{ID: "4", City: "Boise", Date: "2025-01-13"},
	}
	out := agg.Aggregate(context.Background(), "Seattle", 0, all)

	assert.False(t, out.Degraded)
	assert.Equal(t, 0, out.Week)
	assert.Equal(t, "2025-01-06", out.WeekStart)
	assert.Equal(t, "2025-01-12", out.WeekEnd)
	assert.Equal(t, "Seattle", out.City)
	require.Len(t, out.Days, 7)
	assert.Equal(t, []weather.RiskLevel{
		weather.RiskLow, weather.RiskLow, weather.RiskMedium, weather.RiskLow,
		weather.RiskLow, weather.RiskLow, weather.RiskLow,
	}, risks(out.Days))
	assert.Equal(t, "2025-01-08", out.Days[2].Date)

	assert.Equal(t, []string{"Seattle", "Tacoma"}, out.Cities)
	require.Len(t, out.CityDays, 2)
	assert.Len(t, out.CityDays["Tacoma"], 7)
	assert.NotContains(t, out.CityDays, "Boise")

	for _, call := range fc.Calls() {
		assert.Equal(t, "2025-01-06", call.start)
		assert.Equal(t, "2025-01-12", call.end)
	}
}

func TestAggregate_WeekOffset(t *testing.T) {
	agg := NewAggregator(newResolver(map[string]weather.Coordinates{"Seattle": seattle}), &stubForecaster{},
		testOptions(clockwork.NewFakeClockAt(now))...)

	out := agg.Aggregate(context.Background(), "Seattle", 1, []tasks.Task{{City: "Seattle", Date: "2025-01-07"}})

	assert.Equal(t, 1, out.Week)
	assert.Equal(t, "2025-01-13", out.WeekStart)
	assert.Empty(t, out.CityDays)
	assert.Equal(t, []string{}, out.Cities)
}

func TestAggregate_ForecastFailureGivesPlaceholders(t *testing.T) {
	fc := &stubForecaster{series: func(weather.Coordinates, string, string) (weather.ForecastSeries, error) {
		return weather.ForecastSeries{}, weathertest.ErrUnavailable
	}}
	agg := NewAggregator(newResolver(map[string]weather.Coordinates{"Seattle": seattle}), fc,
		testOptions(clockwork.NewFakeClockAt(now))...)

	out := agg.Aggregate(context.Background(), "Seattle", 0, nil)

	assert.True(t, out.Degraded)
	require.Len(t, out.Days, 7)
	for i, d := range out.Days {
		assert.Equal(t, ComputeWeek(now, 0).ISODays()[i], d.Date)
		assert.Nil(t, d.PrecipProbPercent)
		assert.Nil(t, d.WindMaxMs)
		assert.Nil(t, d.TempMinC)
		assert.Equal(t, weather.RiskLow, d.Risk)
	}
}

func TestAggregate_UnresolvedCityIsDegraded(t *testing.T) {
	fc := &stubForecaster{}
	agg := NewAggregator(newResolver(nil), fc, testOptions(clockwork.NewFakeClockAt(now))...)

	out := agg.Aggregate(context.Background(), "Atlantis", 0, nil)

	assert.True(t, out.Degraded)
	assert.Len(t, out.Days, 7)
	require.Len(t, fc.Calls(), 1)
	assert.Equal(t, DefaultCoords, fc.Calls()[0].coords)
}

func TestAggregate_DefaultCityFallbackIsNotDegraded(t *testing.T) {
	agg := NewAggregator(newResolver(nil), &stubForecaster{}, testOptions(clockwork.NewFakeClockAt(now))...)

	out := agg.Aggregate(context.Background(), "  seattle ", 0, nil)
	assert.False(t, out.Degraded)

	out = agg.Aggregate(context.Background(), "", 0, nil)
	assert.False(t, out.Degraded)
	assert.Equal(t, DefaultCity, out.City)
}

func TestAggregate_GeocodeDeadline(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	geo := newResolver(map[string]weather.Coordinates{"Boston": boston})
	geo.block = make(chan struct{})
	defer close(geo.block)

	fc := &stubForecaster{}
	agg := NewAggregator(geo, fc, append(testOptions(clock), WithGeocodeTimeout(2500*time.Millisecond))...)

	done := make(chan Outlook, 1)
	go func() { done <- agg.Aggregate(context.Background(), "Boston", 0, nil) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2500 * time.Millisecond)

	select {
	case out := <-done:
		assert.True(t, out.Degraded)
		require.Len(t, fc.Calls(), 1)
		assert.Equal(t, DefaultCoords, fc.Calls()[0].coords)
	case <-ctx.Done():
		t.Fatal("aggregate blocked past the geocode deadline")
	}
}

func TestAggregate_PartialSeriesAlignedByDate(t *testing.T) {
	fc := &stubForecaster{series: func(weather.Coordinates, string, string) (weather.ForecastSeries, error) {
		return seriesOf([]string{"2025-01-12", "2025-01-07"}, weather.RiskHigh, weather.RiskMedium), nil
	}}
	agg := NewAggregator(newResolver(map[string]weather.Coordinates{"Seattle": seattle}), fc,
		testOptions(clockwork.NewFakeClockAt(now))...)

	out := agg.Aggregate(context.Background(), "Seattle", 0, nil)

	assert.True(t, out.Degraded, "placeholder days must be flagged")
	assert.Equal(t, []weather.RiskLevel{
		weather.RiskLow, weather.RiskMedium, weather.RiskLow, weather.RiskLow,
		weather.RiskLow, weather.RiskLow, weather.RiskHigh,
	}, risks(out.Days))
	assert.Nil(t, out.Days[0].PrecipProbPercent)
	assert.NotNil(t, out.Days[1].PrecipProbPercent)
}

func TestAggregate_PartialCitySeriesCountsAsDegraded(t *testing.T) {
	fc := &stubForecaster{series: func(coords weather.Coordinates, start, end string) (weather.ForecastSeries, error) {
		dates, _ := weathertest.DateRange(start, end)
		if coords == tacoma {
			dates = dates[:3]
		}
		return weathertest.WithPrecip(dates, make([]float64, len(dates)), 3, 12), nil
	}}
	m := metrics.NewMetricsForTesting()
	agg := NewAggregator(newResolver(map[string]weather.Coordinates{"Seattle": seattle, "Tacoma": tacoma}), fc,
		WithClock(clockwork.NewFakeClockAt(now)), WithLogger(logger.Discard()), WithMetrics(m))

	out := agg.Aggregate(context.Background(), "Seattle", 0, []tasks.Task{{City: "Tacoma", Date: "2025-01-08"}})

	assert.False(t, out.Degraded)
	require.Len(t, out.CityDays["Tacoma"], 7)
	assert.NotNil(t, out.CityDays["Tacoma"][2].PrecipProbPercent)
	assert.Nil(t, out.CityDays["Tacoma"][3].PrecipProbPercent)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DegradedOutlooks.WithLabelValues("city")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DegradedOutlooks.WithLabelValues("outlook")))
}

func TestAlignDays(t *testing.T) {
	dates := []string{"2025-01-06", "2025-01-07", "2025-01-08"}

	days, err := alignDays(seriesOf(dates, weather.RiskLow, weather.RiskMedium, weather.RiskHigh), dates)
	require.NoError(t, err)
	assert.Equal(t, []weather.RiskLevel{weather.RiskLow, weather.RiskMedium, weather.RiskHigh}, risks(days))

	days, err = alignDays(seriesOf([]string{"2025-01-08"}, weather.RiskHigh), dates)
	require.ErrorIs(t, err, ErrIncompleteSeries)
	assert.Equal(t, []weather.RiskLevel{weather.RiskLow, weather.RiskLow, weather.RiskHigh}, risks(days))

	days, err = alignDays(seriesOf([]string{"2030-01-01"}, weather.RiskHigh), dates)
	require.ErrorIs(t, err, weather.ErrMalformedSeries)
	assert.Nil(t, days)
}

func TestAggregate_UnusableSeriesIsDegraded(t *testing.T) {
	tests := map[string]weather.ForecastSeries{
		"misaligned":    {Dates: []string{"2025-01-06"}, Precip: []*float64{nil, nil}},
		"no week dates": seriesOf([]string{"2030-01-01"}, weather.RiskHigh),
	}
	for name, series := range tests {
		t.Run(name, func(t *testing.T) {
			fc := &stubForecaster{series: func(weather.Coordinates, string, string) (weather.ForecastSeries, error) {
				return series, nil
			}}
			agg := NewAggregator(newResolver(map[string]weather.Coordinates{"Seattle": seattle}), fc,
				testOptions(clockwork.NewFakeClockAt(now))...)

			out := agg.Aggregate(context.Background(), "Seattle", 0, nil)
			assert.True(t, out.Degraded)
			assert.Len(t, out.Days, 7)
		})
	}
}

func TestAggregate_CityFailuresAreIndependent(t *testing.T) {
	fc := &stubForecaster{series: func(coords weather.Coordinates, start, end string) (weather.ForecastSeries, error) {
		if coords == tacoma {
			return weather.ForecastSeries{}, weathertest.ErrUnavailable
		}
		dates, _ := weathertest.DateRange(start, end)
		return seriesOf(dates, weather.RiskHigh, weather.RiskHigh, weather.RiskHigh,
			weather.RiskHigh, weather.RiskHigh, weather.RiskHigh, weather.RiskHigh), nil
	}}
	geo := newResolver(map[string]weather.Coordinates{"Seattle": seattle, "Tacoma": tacoma, "Boston": boston})
	agg := NewAggregator(geo, fc, testOptions(clockwork.NewFakeClockAt(now))...)

	all := []tasks.Task{
		{City: "Tacoma", Date: "2025-01-08"},
		{City: "Boston", Date: "2025-01-09"},
		{City: "Nowhere", Date: "2025-01-09"},
	}
	out := agg.Aggregate(context.Background(), "Seattle", 0, all)

	assert.False(t, out.Degraded, "per-city failures do not degrade the main outlook")
	assert.Equal(t, []string{"Boston", "Nowhere", "Tacoma"}, out.Cities)
	assert.Equal(t, weather.RiskHigh, out.CityDays["Boston"][0].Risk)
	assert.Equal(t, weather.RiskHigh, out.CityDays["Nowhere"][0].Risk, "unresolved cities use the default coordinates")
	for _, d := range out.CityDays["Tacoma"] {
		assert.Equal(t, weather.RiskLow, d.Risk)
		assert.Nil(t, d.PrecipProbPercent)
	}
}

func TestTaskCities(t *testing.T) {
	w := ComputeWeek(now, 0)
	got := taskCities([]tasks.Task{
		{City: "Tacoma", Date: "2025-01-06"},
		{City: "Tacoma ", Date: "2025-01-07"},
		{City: "", Date: "2025-01-07"},
		{City: "Albany", Date: "2025-01-12"},
		{City: "Reno", Date: "2025-01-13"},
	}, w)
	assert.Equal(t, []string{"Albany", "Tacoma"}, got)
}

func TestReschedule(t *testing.T) {
	today := now
	dates := nextDays(today, 7)
	L, M, H := weather.RiskLow, weather.RiskMedium, weather.RiskHigh

	tests := []struct {
		name      string
		levels    []weather.RiskLevel
		wantDate  string
		wantMoved bool
	}{
		{"first low after today", []weather.RiskLevel{H, H, L, M, L, L, L}, dates[2], true},
		{"today is never chosen", []weather.RiskLevel{L, M, M, L, H, H, H}, dates[3], true},
		{"medium when no low", []weather.RiskLevel{L, H, H, M, H, M, H}, dates[3], true},
		{"all high stays put", []weather.RiskLevel{H, H, H, H, H, H, H}, "2025-01-08", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &stubForecaster{series: func(_ weather.Coordinates, start, end string) (weather.ForecastSeries, error) {
				return seriesOf(dates, tt.levels...), nil
			}}
			r := NewRescheduler(newResolver(map[string]weather.Coordinates{"Tacoma": tacoma}), fc, testOptions(clockwork.NewFakeClock())...)

			task := tasks.Task{ID: "t1", Title: "Trim", City: "Tacoma", Date: "2025-01-08", DurationHours: 2}.Normalize()
			got, moved, err := r.Reschedule(context.Background(), task, today)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMoved, moved)
			assert.Equal(t, tt.wantDate, got.Date)

			got.Date = task.Date
			assert.Equal(t, task, got, "only the date changes")

			require.Len(t, fc.Calls(), 1)
			assert.Equal(t, fetchCall{tacoma, "2025-01-08", "2025-01-14"}, fc.Calls()[0])
		})
	}
}

func TestReschedule_ForecastFailureLeavesTask(t *testing.T) {
	fc := &stubForecaster{series: func(weather.Coordinates, string, string) (weather.ForecastSeries, error) {
		return weather.ForecastSeries{}, errors.New("boom")
	}}
	m := metrics.NewMetricsForTesting()
	r := NewRescheduler(newResolver(nil), fc,
		WithClock(clockwork.NewFakeClock()), WithLogger(logger.Discard()), WithMetrics(m))

	task := tasks.Task{ID: "t1", Title: "Trim", City: "Atlantis", Date: "2025-01-08"}.Normalize()
	got, moved, err := r.Reschedule(context.Background(), task, now)

	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, task, got)
	assert.Equal(t, DefaultCoords, fc.Calls()[0].coords)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reschedules.WithLabelValues("unavailable")))
}

func TestReschedule_InvalidTask(t *testing.T) {
	fc := &stubForecaster{}
	r := NewRescheduler(newResolver(nil), fc, testOptions(clockwork.NewFakeClock())...)

	_, moved, err := r.Reschedule(context.Background(), tasks.Task{ID: "t1", City: "Tacoma"}, now)
	require.ErrorIs(t, err, tasks.ErrInvalidTask)
	assert.False(t, moved)
	assert.Empty(t, fc.Calls())
}

func TestPickDay_SkipsMissingDates(t *testing.T) {
	dates := []string{"d0", "d1", "d2"}
	got, ok := pickDay(dates, map[string]weather.RiskLevel{"d0": weather.RiskLow, "d2": weather.RiskMedium})
	require.True(t, ok)
	assert.Equal(t, "d2", got)

	_, ok = pickDay(dates, map[string]weather.RiskLevel{"d0": weather.RiskLow})
	assert.False(t, ok)
}
