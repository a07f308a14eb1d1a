package weather

import (
	"errors"
	"fmt"
)

// RiskLevel is the derived weather risk of a single day.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// DateLayout is the ISO calendar date format used across the planner.
const DateLayout = "2006-01-02"

// ErrMalformedSeries is returned when a forecast series has misaligned arrays.
var ErrMalformedSeries = errors.New("malformed forecast series")

// Coordinates is a resolved geographic position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// DailyWeather is one classified forecast day. Nil metrics mean "unknown".
type DailyWeather struct {
	Date              string    `json:"date"`
	PrecipProbPercent *float64  `json:"precipProbPercent"`
	WindMaxMs         *float64  `json:"windMaxMs"`
	TempMinC          *float64  `json:"tempMinC"`
	Risk              RiskLevel `json:"risk"`
}

// NewDailyWeather builds a day with its risk derived from the metrics.
func NewDailyWeather(date string, precip, wind, temp *float64) DailyWeather {
	return DailyWeather{
		Date:              date,
		PrecipProbPercent: precip,
		WindMaxMs:         wind,
		TempMinC:          temp,
		Risk:              Classify(precip, wind, temp),
	}
}

// PlaceholderDay is used when no forecast is available for date.
func PlaceholderDay(date string) DailyWeather {
	return NewDailyWeather(date, nil, nil, nil)
}

// ForecastSeries holds index-aligned daily values as returned by a provider.
type ForecastSeries struct {
	Dates  []string   `json:"dates"`
	Precip []*float64 `json:"precip"`
	Wind   []*float64 `json:"wind"`
	Temp   []*float64 `json:"temp"`
}

// Validate checks that every array has the same length.
func (s ForecastSeries) Validate() error {
	n := len(s.Dates)
	if len(s.Precip) != n || len(s.Wind) != n || len(s.Temp) != n {
		return fmt.Errorf("%w: dates=%d precip=%d wind=%d temp=%d",
			ErrMalformedSeries, n, len(s.Precip), len(s.Wind), len(s.Temp))
	}
	return nil
}

// Days classifies every entry of the series in order.
func (s ForecastSeries) Days() []DailyWeather {
	days := make([]DailyWeather, len(s.Dates))
	for i, date := range s.Dates {
		days[i] = NewDailyWeather(date, s.Precip[i], s.Wind[i], s.Temp[i])
	}
	return days
}
