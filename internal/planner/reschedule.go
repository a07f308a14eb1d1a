package planner

import (
	"context"
	"time"

	"github.com/i474232898/fieldwork-weather-planner/internal/tasks"
	"github.com/i474232898/fieldwork-weather-planner/internal/weather"
)

// rescheduleHorizon is today plus the six days a task may move to.
const rescheduleHorizon = 7

// Rescheduler picks the next acceptable day for a task based on the coming week's risk.
type Rescheduler struct {
	geo      Resolver
	forecast Forecaster
	settings
}

func NewRescheduler(geo Resolver, forecast Forecaster, opts ...Option) *Rescheduler {
	s := newSettings(opts)
	s.logger = s.logger.With("component", "rescheduler")
	return &Rescheduler{geo: geo, forecast: forecast, settings: s}
}

// Reschedule moves task to the first low-risk day after today, or failing that the first
// medium-risk day. It reports moved=false and returns task unchanged when no day qualifies
// or the forecast is unavailable. Only invalid tasks produce an error.
func (r *Rescheduler) Reschedule(ctx context.Context, task tasks.Task, today time.Time) (tasks.Task, bool, error) {
	if err := task.Validate(); err != nil {
		return task, false, err
	}

	coords := r.fallback
	if resolved := r.geo.Resolve(ctx, task.City); resolved != nil {
		coords = *resolved
	} else {
		r.logger.Warn("using fallback coordinates", "task", task.ID, "city", task.City)
	}

	dates := nextDays(today, rescheduleHorizon)
	series, err := r.forecast.FetchRange(ctx, coords, dates[0], dates[len(dates)-1])
	if err == nil {
		err = series.Validate()
	}
	if err != nil {
		r.logger.Warn("forecast unavailable, task left in place", "task", task.ID, "err", err)
		r.metrics.Reschedule("unavailable")
		return task, false, nil
	}

	byDate := make(map[string]weather.RiskLevel, len(series.Dates))
	for _, d := range series.Days() {
		byDate[d.Date] = d.Risk
	}

	date, ok := pickDay(dates, byDate)
	if !ok {
		r.metrics.Reschedule("unchanged")
		return task, false, nil
	}

	moved := task
	moved.Date = date
	r.metrics.Reschedule("moved")
	r.logger.Info("task rescheduled", "task", task.ID, "from", task.Date, "to", date)
	return moved, true, nil
}

// pickDay scans dates[1:] for the first low day, then the first medium day.
// Dates missing from risks are never chosen.
func pickDay(dates []string, risks map[string]weather.RiskLevel) (string, bool) {
	for _, want := range []weather.RiskLevel{weather.RiskLow, weather.RiskMedium} {
		for _, date := range dates[1:] {
			if risk, ok := risks[date]; ok && risk == want {
				return date, true
			}
		}
	}
	return "", false
}
