package planner

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/i474232898/fieldwork-weather-planner/internal/common"
	"github.com/i474232898/fieldwork-weather-planner/internal/tasks"
	"github.com/i474232898/fieldwork-weather-planner/internal/weather"
)

// WeekView is an outlook together with the tasks dated inside its week.
type WeekView struct {
	Outlook
	Tasks []tasks.Task `json:"tasks"`
}

// ServiceConfig holds the collaborators of a Service. Cities and Clock are optional.
type ServiceConfig struct {
	Tasks       tasks.Store
	Auth        tasks.AuthStore
	Aggregator  *Aggregator
	Rescheduler *Rescheduler
	Cities      weather.CitySearcher
	Clock       clockwork.Clock
	Logger      *log.Logger
}

// Service applies role rules around the planner engine and the task store.
type Service struct {
	tasks       tasks.Store
	auth        tasks.AuthStore
	aggregator  *Aggregator
	rescheduler *Rescheduler
	cities      weather.CitySearcher
	clock       clockwork.Clock
	logger      *log.Logger
	newID       func() string
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		tasks:       cfg.Tasks,
		auth:        cfg.Auth,
		aggregator:  cfg.Aggregator,
		rescheduler: cfg.Rescheduler,
		cities:      cfg.Cities,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		newID:       uuid.NewString,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	s.logger = s.logger.With("component", "planner")
	return s
}

func (s *Service) currentUser(ctx context.Context) (tasks.User, error) {
	if s.auth == nil {
		return tasks.User{}, tasks.ErrUnauthenticated
	}
	u, ok := s.auth.CurrentUser(ctx)
	if !ok {
		return tasks.User{}, tasks.ErrUnauthenticated
	}
	return u, nil
}

// Outlook builds the week view for city. An empty city means the default city.
func (s *Service) Outlook(ctx context.Context, city string, week int) (WeekView, error) {
	all, err := s.tasks.List(ctx)
	if err != nil {
		return WeekView{}, fmt.Errorf("list tasks: %w", err)
	}

	outlook := s.aggregator.Aggregate(ctx, city, week, all)

	inWeek := make([]tasks.Task, 0, len(all))
	for _, t := range all {
		if t.Date >= outlook.WeekStart && t.Date <= outlook.WeekEnd {
			inWeek = append(inWeek, t)
		}
	}
	return WeekView{Outlook: outlook, Tasks: inWeek}, nil
}

// Reschedule moves a stored task to the next acceptable day. Only managers and
// dispatchers may do this. The task is written back only when it moved.
func (s *Service) Reschedule(ctx context.Context, id string) (tasks.Task, bool, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return tasks.Task{}, false, err
	}

	existing, err := s.tasks.Get(ctx, id)
	if err != nil {
		return tasks.Task{}, false, err
	}
	if !tasks.CanReschedule(user) {
		return existing, false, fmt.Errorf("%w: role %q cannot reschedule", tasks.ErrForbidden, user.Role)
	}

	updated, moved, err := s.rescheduler.Reschedule(ctx, existing, s.clock.Now())
	if err != nil || !moved {
		return existing, false, err
	}
	if err := s.tasks.Update(ctx, updated); err != nil {
		return existing, false, fmt.Errorf("save rescheduled task: %w", err)
	}
	s.logger.Info("task moved", "task", id, "user", user.ID, "date", updated.Date)
	return updated, true, nil
}

func (s *Service) ListTasks(ctx context.Context) ([]tasks.Task, error) {
	return s.tasks.List(ctx)
}

func (s *Service) GetTask(ctx context.Context, id string) (tasks.Task, error) {
	return s.tasks.Get(ctx, id)
}

// CreateTask assigns a new id and stores t.
func (s *Service) CreateTask(ctx context.Context, t tasks.Task) (tasks.Task, error) {
	if _, err := s.currentUser(ctx); err != nil {
		return tasks.Task{}, err
	}

	t = t.Normalize()
	t.ID = s.newID()
	if err := t.Validate(); err != nil {
		return tasks.Task{}, err
	}
	if err := s.tasks.Add(ctx, t); err != nil {
		return tasks.Task{}, err
	}
	return t, nil
}

// EditTask replaces the stored task with edit. Technicians may only change status and notes.
func (s *Service) EditTask(ctx context.Context, id string, edit tasks.Task) (tasks.Task, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return tasks.Task{}, err
	}

	existing, err := s.tasks.Get(ctx, id)
	if err != nil {
		return tasks.Task{}, err
	}

	edit = edit.Normalize()
	updated := edit
	if user.Role == tasks.RoleTechnician {
		updated = existing
		updated.Status = edit.Status
		updated.Notes = edit.Notes
	}
	updated.ID = id

	if err := updated.Validate(); err != nil {
		return tasks.Task{}, err
	}
	if err := s.tasks.Update(ctx, updated); err != nil {
		return tasks.Task{}, err
	}
	return updated, nil
}

// SearchCities suggests city names. Failures yield an empty list.
func (s *Service) SearchCities(ctx context.Context, query string) []string {
	query = common.NormalizeCity(query)
	if s.cities == nil || query == "" {
		return []string{}
	}
	names, err := s.cities.SearchCities(ctx, query)
	if err != nil {
		s.logger.Warn("city search failed", "query", query, "err", err)
		return []string{}
	}
	if names == nil {
		return []string{}
	}
	return names
}
