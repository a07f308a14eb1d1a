package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/fieldwork-weather-planner/internal/auth"
	"github.com/i474232898/fieldwork-weather-planner/internal/logger"
	"github.com/i474232898/fieldwork-weather-planner/internal/planner"
	"github.com/i474232898/fieldwork-weather-planner/internal/store"
	"github.com/i474232898/fieldwork-weather-planner/internal/tasks"
	"github.com/i474232898/fieldwork-weather-planner/internal/weather"
	"github.com/i474232898/fieldwork-weather-planner/internal/weather/weathertest"
)

// Wednesday; the current week is 2025-01-06..2025-01-12.
var now = time.Date(2025, time.January, 8, 9, 0, 0, 0, time.UTC)

type fixedResolver struct{}

func (fixedResolver) Resolve(context.Context, string) *weather.Coordinates {
	return &weather.Coordinates{Lat: 47.2529, Lon: -122.4443}
}

// rainyToday reports high risk for the first requested day and low afterwards.
type rainyToday struct{}

func (rainyToday) FetchRange(_ context.Context, _ weather.Coordinates, start, end string) (weather.ForecastSeries, error) {
	dates, err := weathertest.DateRange(start, end)
	if err != nil {
		return weather.ForecastSeries{}, err
	}
	precip := make([]float64, len(dates))
	precip[0] = 80
	s := weathertest.WithPrecip(dates, precip, 3, 12)
	s.Wind[0] = weathertest.Float(15)
	return s, nil
}

type fixedCities struct{}

func (fixedCities) SearchCities(context.Context, string) ([]string, error) {
	return []string{"Tacoma, Pierce County, Washington"}, nil
}

type testServer struct {
	app    *fiber.App
	tokens *auth.Tokens
	store  *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)
	opts := []planner.Option{planner.WithClock(clock), planner.WithLogger(logger.Discard())}

	ts := store.NewMemoryStore(tasks.Task{
		ID: "t1", Title: "Replace meter", Date: "2025-01-08", City: "Tacoma",
		Role: tasks.RoleTechnician, DurationHours: 2, Status: tasks.StatusToDo,
	})
	svc := planner.NewService(planner.ServiceConfig{
		Tasks:       ts,
		Auth:        auth.ContextStore{},
		Aggregator:  planner.NewAggregator(fixedResolver{}, rainyToday{}, opts...),
		Rescheduler: planner.NewRescheduler(fixedResolver{}, rainyToday{}, opts...),
		Cities:      fixedCities{},
		Clock:       clock,
		Logger:      logger.Discard(),
	})

	tokens := auth.NewTokens("test-secret", time.Hour, clock)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, svc, tokens)
	return &testServer{app: app, tokens: tokens, store: ts}
}

func (s *testServer) do(t *testing.T, role tasks.Role, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		token, err := s.tokens.Generate(tasks.User{ID: string(role) + "1", Role: role})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	return resp, decoded
}

func TestRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "", http.MethodGet, "/api/v1/tasks", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, true, body["error"])
}

func TestRoutes_Outlook(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, tasks.RoleTechnician, http.MethodGet, "/api/v1/outlook?city=Tacoma&week=0", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2025-01-06", body["weekStart"])
	assert.Equal(t, "2025-01-12", body["weekEnd"])
	assert.Equal(t, false, body["degraded"])
	assert.Len(t, body["days"], 7)
	assert.Len(t, body["tasks"], 1)
	assert.Equal(t, []any{"Tacoma"}, body["cities"])
}

func TestRoutes_OutlookValidation(t *testing.T) {
	s := newTestServer(t)

	for _, target := range []string{"/api/v1/outlook?week=abc", "/api/v1/outlook?week=99"} {
		resp, _ := s.do(t, tasks.RoleManager, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
	}
}

func TestRoutes_Reschedule(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, tasks.RoleTechnician, http.MethodPost, "/api/v1/tasks/t1/reschedule", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := s.do(t, tasks.RoleDispatcher, http.MethodPost, "/api/v1/tasks/t1/reschedule", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["moved"])
	assert.Equal(t, "2025-01-09", body["task"].(map[string]any)["date"])

	resp, _ = s.do(t, tasks.RoleManager, http.MethodPost, "/api/v1/tasks/missing/reschedule", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutes_CreateAndEditTask(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, tasks.RoleManager, http.MethodPost, "/api/v1/tasks",
		`{"title":"Survey","date":"2025-01-10","city":"Seattle","durationHours":1}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "ToDo", body["status"])

	resp, _ = s.do(t, tasks.RoleManager, http.MethodPost, "/api/v1/tasks", `{"title":"","date":"bad"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = s.do(t, tasks.RoleTechnician, http.MethodPut, "/api/v1/tasks/"+id,
		`{"title":"Renamed","date":"2025-03-01","city":"Boise","status":"Done","notes":"ok"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Survey", body["title"])
	assert.Equal(t, "Done", body["status"])

	resp, _ = s.do(t, tasks.RoleManager, http.MethodGet, "/api/v1/tasks/"+id, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, tasks.RoleManager, http.MethodGet, "/api/v1/tasks/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	list, err := s.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRoutes_Cities(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, tasks.RoleManager, http.MethodGet, "/api/v1/cities?q=tac", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"Tacoma, Pierce County, Washington"}, body["cities"])
}
