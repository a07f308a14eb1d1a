package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/i474232898/fieldwork-weather-planner/internal/app"
	"github.com/i474232898/fieldwork-weather-planner/internal/config"
	"github.com/i474232898/fieldwork-weather-planner/internal/logger"
)

var CLI struct {
	Version kong.VersionFlag
	User    string `help:"User id to act as." default:"cli"`
	Role    string `help:"Role to act as." enum:"manager,technician,dispatcher" default:"manager"`

	Outlook    OutlookCmd    `cmd:"" help:"Show the weather outlook for a city and week."`
	Reschedule RescheduleCmd `cmd:"" help:"Move a task to the next acceptable-risk day."`
	Token      TokenCmd      `cmd:"" help:"Issue a bearer token for the HTTP API."`
	Cities     CitiesCmd     `cmd:"" help:"Search city names."`
	Tasks      TasksCmd      `cmd:"" help:"List stored tasks."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("plannerctl"),
		kong.Description("Weather-aware field-work planner"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	if err := run(kctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile, Prefix: "plannerctl"})
	if err != nil {
		return err
	}

	if ephemeralTasks(cfg, kctx.Command()) {
		log.Warn("task_store is memory and no seed_file is set; tasks will not persist between runs",
			"command", kctx.Command())
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	return kctx.Run(&Context{Ctx: ctx, App: a, Out: os.Stdout})
}

// ephemeralTasks reports whether a task-reading command would run against an
// empty in-memory store.
func ephemeralTasks(cfg *config.AppConfig, command string) bool {
	if cfg.TaskStore != "memory" || cfg.SeedFile != "" {
		return false
	}
	name, _, _ := strings.Cut(command, " ")
	return name == "tasks" || name == "reschedule"
}
