package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/fieldwork-weather-planner/internal/weather"
)

// BreakerConfig controls when a provider's circuit opens and how long it stays open.
type BreakerConfig struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// DefaultBreaker matches the settings every provider starts with.
var DefaultBreaker = BreakerConfig{
	MaxRequests: 5,
	Interval:    1 * time.Minute,
	Timeout:     2 * time.Minute,
}

var (
	ErrRateLimited       = errors.New("rate limited")
	ErrServerError       = errors.New("server error")
	ErrUnexpectedStatus  = errors.New("unexpected status code")
	ErrCircuitOpen       = errors.New("circuit breaker open")
	ErrNoHTTPClient      = errors.New("http client not configured")
	ErrNoResults         = errors.New("no results")
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrNotConfigured     = errors.New("provider not configured")
	ErrKeyConflict       = errors.New("provider already configured with a different key")
)

func newCircuitBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
	})
}

// doRequest performs a single HTTP call through the circuit breaker.
// Retries belong to the caller; see IsRetryable.
func doRequest(
	ctx context.Context,
	client *http.Client,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (*http.Response, error) {
	if client == nil {
		return nil, ErrNoHTTPClient
	}

	req, err := buildRequest(ctx)
	if err != nil {
		return nil, err
	}

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := client.Do(req)
		if execErr != nil {
			return nil, execErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, ErrRateLimited
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: %d", ErrServerError, resp.StatusCode)
		default:
			return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		}
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return resp, nil
}

// IsRetryable reports whether a provider error is worth another attempt.
// Transport failures, rate limits and 5xx are transient; everything the
// provider answered deliberately is not.
func IsRetryable(err error, _ int) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrCircuitOpen),
		errors.Is(err, ErrUnexpectedStatus),
		errors.Is(err, ErrNoResults),
		errors.Is(err, ErrMalformedResponse),
		errors.Is(err, ErrNotConfigured),
		errors.Is(err, ErrNoHTTPClient),
		errors.Is(err, weather.ErrMalformedSeries):
		return false
	default:
		return true
	}
}
