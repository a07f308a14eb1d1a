package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/i474232898/fieldwork-weather-planner/internal/weather"
)

const (
	DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"
	openMeteoDaily      = "precipitation_probability_max,temperature_2m_min,wind_speed_10m_max"
)

// OpenMeteoProvider implements weather.ForecastProvider for Open-Meteo. No API key is needed.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, baseURL string) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: baseURL,
		client:  client,
		circuit: newCircuitBreaker("openmeteo", DefaultBreaker),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type openMeteoPayload struct {
	Daily *struct {
		Time       []string   `json:"time"`
		Precip     []*float64 `json:"precipitation_probability_max"`
		Wind       []*float64 `json:"wind_speed_10m_max"`
		WindLegacy []*float64 `json:"windspeed_10m_max"`
		Temp       []*float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

func (p *OpenMeteoProvider) DailyRange(ctx context.Context, coords weather.Coordinates, start, end string) (weather.ForecastSeries, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", coords.Lat))
		values.Set("longitude", fmt.Sprintf("%f", coords.Lon))
		values.Set("daily", openMeteoDaily)
		values.Set("timezone", "auto")
		values.Set("wind_speed_unit", "ms")
		values.Set("start_date", start)
		values.Set("end_date", end)

		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequest(ctx, p.client, p.circuit, buildRequest)
	if err != nil {
		return weather.ForecastSeries{}, err
	}
	defer resp.Body.Close()

	var payload openMeteoPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.ForecastSeries{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if payload.Daily == nil {
		return weather.ForecastSeries{}, fmt.Errorf("%w: missing daily block", ErrMalformedResponse)
	}

	d := payload.Daily
	wind := d.Wind
	if wind == nil {
		wind = d.WindLegacy
	}
	n := len(d.Time)

	return weather.ForecastSeries{
		Dates:  d.Time,
		Precip: orNulls(d.Precip, n),
		Wind:   orNulls(wind, n),
		Temp:   orNulls(d.Temp, n),
	}, nil
}

// orNulls substitutes an all-null column when the provider omitted one.
func orNulls(values []*float64, n int) []*float64 {
	if values == nil {
		return make([]*float64, n)
	}
	return values
}
