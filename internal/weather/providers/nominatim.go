package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/fieldwork-weather-planner/internal/weather"
)

const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	DefaultUserAgent    = "fieldwork-weather-planner/1.0"
	citySuggestionLimit = 5
)

// NominatimProvider geocodes and searches place names against an OpenStreetMap Nominatim server.
// Nominatim rejects anonymous clients, so every request carries a User-Agent.
type NominatimProvider struct {
	name      string
	baseURL   string
	userAgent string
	client    *http.Client
	circuit   *gobreaker.CircuitBreaker
}

func NewNominatimProvider(client *http.Client, baseURL, userAgent string) *NominatimProvider {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &NominatimProvider{
		name:      "nominatim",
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    client,
		circuit:   newCircuitBreaker("nominatim", DefaultBreaker),
	}
}

func (p *NominatimProvider) Name() string {
	return p.name
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (p *NominatimProvider) search(ctx context.Context, query string, limit int) ([]nominatimPlace, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("format", "json")
		values.Set("addressdetails", "0")
		values.Set("limit", strconv.Itoa(limit))
		values.Set("q", query)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search?"+values.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", p.userAgent)
		req.Header.Set("Accept-Language", "en")
		return req, nil
	}

	resp, err := doRequest(ctx, p.client, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return places, nil
}

// Geocode takes the first candidate Nominatim returns for city.
func (p *NominatimProvider) Geocode(ctx context.Context, city string) (weather.Coordinates, error) {
	places, err := p.search(ctx, city, 1)
	if err != nil {
		return weather.Coordinates{}, err
	}
	if len(places) == 0 {
		return weather.Coordinates{}, fmt.Errorf("%w for %q", ErrNoResults, city)
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return weather.Coordinates{}, fmt.Errorf("%w: lat %q", ErrMalformedResponse, places[0].Lat)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return weather.Coordinates{}, fmt.Errorf("%w: lon %q", ErrMalformedResponse, places[0].Lon)
	}
	return weather.Coordinates{Lat: lat, Lon: lon}, nil
}

// SearchCities returns up to five distinct display names, in provider order.
func (p *NominatimProvider) SearchCities(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{}, nil
	}

	places, err := p.search(ctx, query, citySuggestionLimit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(places))
	names := make([]string, 0, len(places))
	for _, place := range places {
		if place.DisplayName == "" {
			continue
		}
		if _, dup := seen[place.DisplayName]; dup {
			continue
		}
		seen[place.DisplayName] = struct{}{}
		names = append(names, place.DisplayName)
		if len(names) == citySuggestionLimit {
			break
		}
	}
	return names, nil
}
