// Package planner builds weekly weather outlooks for field-work tasks and
// moves tasks away from risky days.
package planner

import (
	"time"

	"github.com/i474232898/fieldwork-weather-planner/internal/weather"
)

// WeekWindow is a Monday-to-Sunday range relative to the current week.
type WeekWindow struct {
	Offset int
	Start  time.Time
	End    time.Time
	Days   [7]time.Time
}

// ComputeWeek returns the week that is offset weeks away from the one containing today.
// Start is the Monday at midnight in today's location.
func ComputeWeek(today time.Time, offset int) WeekWindow {
	mondayOffset := 1 - int(today.Weekday())
	if today.Weekday() == time.Sunday {
		mondayOffset = -6
	}

	y, m, d := today.Date()
	first := d + mondayOffset + offset*7

	w := WeekWindow{Offset: offset}
	for i := range w.Days {
		w.Days[i] = time.Date(y, m, first+i, 0, 0, 0, 0, today.Location())
	}
	w.Start = w.Days[0]
	w.End = w.Days[6]
	return w
}

// ISODays formats the seven days of the window.
func (w WeekWindow) ISODays() []string {
	out := make([]string, len(w.Days))
	for i, d := range w.Days {
		out[i] = d.Format(weather.DateLayout)
	}
	return out
}

func (w WeekWindow) StartISO() string { return w.Start.Format(weather.DateLayout) }

func (w WeekWindow) EndISO() string { return w.End.Format(weather.DateLayout) }

// Contains reports whether the ISO date lies within the window. ISO dates compare lexically.
func (w WeekWindow) Contains(date string) bool {
	return date >= w.StartISO() && date <= w.EndISO()
}

// nextDays lists count ISO dates starting at from.
func nextDays(from time.Time, count int) []string {
	y, m, d := from.Date()
	out := make([]string, count)
	for i := range out {
		out[i] = time.Date(y, m, d+i, 0, 0, 0, 0, from.Location()).Format(weather.DateLayout)
	}
	return out
}
