package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/i474232898/fieldwork-weather-planner/internal/app"
	"github.com/i474232898/fieldwork-weather-planner/internal/auth"
	"github.com/i474232898/fieldwork-weather-planner/internal/tasks"
	"github.com/i474232898/fieldwork-weather-planner/internal/weather"
)

var (
	headingStyle  = lipgloss.NewStyle().Bold(true)
	degradedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Context is passed to every command's Run method.
type Context struct {
	Ctx context.Context
	App *app.App
	Out io.Writer
}

// asUser attaches the global --user/--role identity to ctx.
func (c *Context) asUser() context.Context {
	return auth.WithUser(c.Ctx, tasks.User{ID: CLI.User, Role: tasks.Role(CLI.Role)})
}

type OutlookCmd struct {
	City string `help:"City to forecast; defaults to the configured default city." short:"c"`
	Week int    `help:"Week offset from the current week." short:"w" default:"0"`
	JSON bool   `help:"Print the raw outlook as JSON."`
}

func (c *OutlookCmd) Run(ctx *Context) error {
	view, err := ctx.App.Service.Outlook(ctx.asUser(), c.City, c.Week)
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(ctx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	fmt.Fprint(ctx.Out, headingStyle.Render(fmt.Sprintf("%s  %s .. %s", view.City, view.WeekStart, view.WeekEnd)))
	if view.Degraded {
		fmt.Fprint(ctx.Out, degradedStyle.Render("  (degraded)"))
	}
	fmt.Fprintln(ctx.Out)
	printDays(ctx.Out, view.Days)

	for _, city := range view.Cities {
		fmt.Fprintf(ctx.Out, "\n%s\n", headingStyle.Render(city))
		printDays(ctx.Out, view.CityDays[city])
	}

	if len(view.Tasks) > 0 {
		fmt.Fprintf(ctx.Out, "\n%s\n", headingStyle.Render("Tasks"))
		printTasks(ctx.Out, view.Tasks)
	}
	return nil
}

type RescheduleCmd struct {
	ID string `arg:"" help:"Task id."`
}

func (c *RescheduleCmd) Run(ctx *Context) error {
	before, err := ctx.App.Service.GetTask(ctx.Ctx, c.ID)
	if err != nil {
		return err
	}
	after, moved, err := ctx.App.Service.Reschedule(ctx.asUser(), c.ID)
	if err != nil {
		return err
	}
	if !moved {
		fmt.Fprintf(ctx.Out, "%s stays on %s: no acceptable day in the next week\n", c.ID, before.Date)
		return nil
	}
	fmt.Fprintf(ctx.Out, "%s moved %s -> %s\n", c.ID, before.Date, after.Date)
	return nil
}

type TokenCmd struct {
	Name string `help:"Display name stored in the token."`
}

func (c *TokenCmd) Run(ctx *Context) error {
	token, err := ctx.App.Tokens.Generate(tasks.User{ID: CLI.User, Name: c.Name, Role: tasks.Role(CLI.Role)})
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Out, token)
	return nil
}

type CitiesCmd struct {
	Query []string `arg:"" help:"Partial city name."`
}

func (c *CitiesCmd) Run(ctx *Context) error {
	for _, name := range ctx.App.Service.SearchCities(ctx.Ctx, strings.Join(c.Query, " ")) {
		fmt.Fprintln(ctx.Out, name)
	}
	return nil
}

type TasksCmd struct{}

func (c *TasksCmd) Run(ctx *Context) error {
	list, err := ctx.App.Service.ListTasks(ctx.Ctx)
	if err != nil {
		return err
	}
	printTasks(ctx.Out, list)
	return nil
}

func printDays(out io.Writer, days []weather.DailyWeather) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tRISK\tPRECIP %\tWIND m/s\tTEMP MIN C")
	for _, d := range days {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.Date, d.Risk,
			metric(d.PrecipProbPercent), metric(d.WindMaxMs), metric(d.TempMinC))
	}
	w.Flush()
}

func printTasks(out io.Writer, list []tasks.Task) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tCITY\tSTATUS\tTITLE")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Date, t.City, t.Status, t.Title)
	}
	w.Flush()
}

func metric(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}
