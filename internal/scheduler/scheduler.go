package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron"
	"github.com/jonboulle/clockwork"

	"github.com/i474232898/fieldwork-weather-planner/internal/cache"
	"github.com/i474232898/fieldwork-weather-planner/internal/planner"
)

const jobTimeout = 30 * time.Second

// Outlooker is satisfied by *planner.Service.
type Outlooker interface {
	Outlook(ctx context.Context, city string, week int) (planner.WeekView, error)
}

// Scheduler periodically builds the current-week outlook for configured cities so
// geocodes and forecasts are already cached when users ask, and purges expired cache rows.
type Scheduler struct {
	scheduler *gocron.Scheduler
	outlooks  Outlooker
	purger    cache.Purger // nil when the cache store cannot purge
	cities    []string
	interval  time.Duration
	clock     clockwork.Clock
	logger    *log.Logger
}

// New creates a new Scheduler. purger may be nil.
func New(cities []string, interval time.Duration, outlooks Outlooker, purger cache.Purger, clock clockwork.Clock, logger *log.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		outlooks:  outlooks,
		purger:    purger,
		cities:    cities,
		interval:  interval,
		clock:     clock,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// A zero interval or an empty city list leaves the scheduler idle.
func (s *Scheduler) Start() error {
	if s.interval <= 0 || (len(s.cities) == 0 && s.purger == nil) {
		s.logger.Info("nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce warms every city concurrently and then purges expired cache entries.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.logger.Debug("running warm-up job", "cities", len(s.cities))

	var wg sync.WaitGroup
	for _, city := range s.cities {
		wg.Add(1)
		go func(city string) {
			defer wg.Done()

			view, err := s.outlooks.Outlook(ctx, city, 0)
			if err != nil {
				s.logger.Warn("warm-up failed", "city", city, "err", err)
				return
			}
			if view.Degraded {
				s.logger.Warn("warm-up degraded", "city", city)
			}
		}(city)
	}
	wg.Wait()

	if s.purger != nil {
		n, err := s.purger.Purge(ctx, s.clock.Now())
		if err != nil {
			s.logger.Warn("cache purge failed", "err", err)
			return
		}
		s.logger.Debug("cache purged", "removed", n)
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
