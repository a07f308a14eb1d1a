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
	DefaultWeatherAPIURL = "https://api.weatherapi.com/v1/forecast.json"
	// weatherAPIMaxDays is the longest forecast the API hands out in one call.
	weatherAPIMaxDays = 14
)

// WeatherAPIProvider implements weather.ForecastProvider for WeatherAPI.com.
// The API only forecasts forward from today, so days outside that window are
// simply absent from the returned series.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey, baseURL string) *WeatherAPIProvider {
	if baseURL == "" {
		baseURL = DefaultWeatherAPIURL
	}
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
		circuit: newCircuitBreaker("weatherapi", DefaultBreaker),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

type weatherAPIPayload struct {
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  struct {
				ChanceOfRain *float64 `json:"daily_chance_of_rain"`
				MaxWindKph   *float64 `json:"maxwind_kph"`
				MinTempC     *float64 `json:"mintemp_c"`
			} `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func (p *WeatherAPIProvider) DailyRange(ctx context.Context, coords weather.Coordinates, start, end string) (weather.ForecastSeries, error) {
	if p.apiKey == "" {
		return weather.ForecastSeries{}, fmt.Errorf("%w: weatherapi api key", ErrNotConfigured)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", fmt.Sprintf("%f,%f", coords.Lat, coords.Lon))
		values.Set("days", fmt.Sprintf("%d", weatherAPIMaxDays))
		values.Set("aqi", "no")
		values.Set("alerts", "no")

		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequest(ctx, p.client, p.circuit, buildRequest)
	if err != nil {
		return weather.ForecastSeries{}, err
	}
	defer resp.Body.Close()

	var payload weatherAPIPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.ForecastSeries{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var series weather.ForecastSeries
	for _, fd := range payload.Forecast.ForecastDay {
		// ISO dates compare correctly as strings.
		if fd.Date < start || fd.Date > end {
			continue
		}
		series.Dates = append(series.Dates, fd.Date)
		series.Precip = append(series.Precip, fd.Day.ChanceOfRain)
		series.Wind = append(series.Wind, kphToMS(fd.Day.MaxWindKph))
		series.Temp = append(series.Temp, fd.Day.MinTempC)
	}
	if len(series.Dates) == 0 {
		return weather.ForecastSeries{}, fmt.Errorf("%w: %s..%s outside forecast horizon", ErrNoResults, start, end)
	}
	return series, nil
}

func kphToMS(kph *float64) *float64 {
	if kph == nil {
		return nil
	}
	ms := *kph / 3.6
	return &ms
}
