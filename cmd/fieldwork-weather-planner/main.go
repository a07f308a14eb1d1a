package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/i474232898/fieldwork-weather-planner/internal/api/http"
	"github.com/i474232898/fieldwork-weather-planner/internal/app"
	"github.com/i474232898/fieldwork-weather-planner/internal/config"
	"github.com/i474232898/fieldwork-weather-planner/internal/logger"
)

const serviceName = "fieldwork-weather-planner"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback, _ := logger.New(logger.Config{})
		fallback.Fatal("failed to load config", "err", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fallback, _ := logger.New(logger.Config{})
		fallback.Fatal("failed to build logger", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatal("failed to build app", "err", err)
	}
	defer a.Close()

	// Scheduler that keeps outlooks for the configured cities warm.
	if err := a.Scheduler.Start(); err != nil {
		log.Fatal("failed to start scheduler", "err", err)
	}
	defer a.Scheduler.Stop()

	server := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.HTTPTimeout + cfg.GeocodeTimeout,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	server.Use(fiberlogger.New())
	server.Use(recover.New())
	server.Use(cors.New())

	server.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})
	server.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpapi.RegisterRoutes(server, a.Service, a.Tokens)

	go func() {
		log.Info("listening", "port", cfg.Port)
		if err := server.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "err", err)
	}
}
