package weather

import "context"

// GeocodeProvider resolves a free-text place name to coordinates.
type GeocodeProvider interface {
	Name() string
	Geocode(ctx context.Context, city string) (Coordinates, error)
}

// ForecastProvider returns a daily series for an inclusive ISO date range.
type ForecastProvider interface {
	Name() string
	DailyRange(ctx context.Context, coords Coordinates, start, end string) (ForecastSeries, error)
}

// CitySearcher suggests display names for a partial place query.
type CitySearcher interface {
	SearchCities(ctx context.Context, query string) ([]string, error)
}
