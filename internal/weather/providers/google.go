package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"
	"github.com/sony/gobreaker"

	"github.com/i474232898/fieldwork-weather-planner/internal/weather"
)

// The geocoder package keeps its API key in a package variable, so one process
// can only talk to Google with one key.
var (
	googleKeyMu sync.Mutex
	googleKey   string
)

func setGoogleKey(apiKey string) error {
	googleKeyMu.Lock()
	defer googleKeyMu.Unlock()
	if googleKey != "" && googleKey != apiKey {
		return fmt.Errorf("%w: google geocoder", ErrKeyConflict)
	}
	googleKey = apiKey
	geocoder.ApiKey = apiKey
	return nil
}

// GoogleGeocoder implements weather.GeocodeProvider with the Google Geocoding API.
type GoogleGeocoder struct {
	name    string
	circuit *gobreaker.CircuitBreaker
	lookup  func(geocoder.Address) (geocoder.Location, error)
}

// NewGoogleGeocoder configures the process-wide geocoder key. Later calls must
// pass the same key.
func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: google geocoder api key", ErrNotConfigured)
	}
	if err := setGoogleKey(apiKey); err != nil {
		return nil, err
	}

	return &GoogleGeocoder{
		name:    "google",
		circuit: newCircuitBreaker("google", DefaultBreaker),
		lookup:  geocoder.Geocoding,
	}, nil
}

func (g *GoogleGeocoder) Name() string {
	return g.name
}

type googleResult struct {
	loc geocoder.Location
	err error
}

// Geocode runs the blocking library call in the background so ctx can still abandon it.
func (g *GoogleGeocoder) Geocode(ctx context.Context, city string) (weather.Coordinates, error) {
	done := make(chan googleResult, 1)
	go func() {
		res, err := g.circuit.Execute(func() (interface{}, error) {
			return g.lookup(geocoder.Address{City: city})
		})
		if err != nil {
			done <- googleResult{err: err}
			return
		}
		done <- googleResult{loc: res.(geocoder.Location)}
	}()

	select {
	case <-ctx.Done():
		return weather.Coordinates{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			if r.err == gobreaker.ErrOpenState || r.err == gobreaker.ErrTooManyRequests {
				return weather.Coordinates{}, fmt.Errorf("%w: %v", ErrCircuitOpen, r.err)
			}
			return weather.Coordinates{}, fmt.Errorf("google geocode %q: %w", city, r.err)
		}
		return weather.Coordinates{Lat: r.loc.Latitude, Lon: r.loc.Longitude}, nil
	}
}
