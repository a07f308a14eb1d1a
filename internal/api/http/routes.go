package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/fieldwork-weather-planner/internal/auth"
	"github.com/i474232898/fieldwork-weather-planner/internal/planner"
	"github.com/i474232898/fieldwork-weather-planner/internal/store"
	"github.com/i474232898/fieldwork-weather-planner/internal/tasks"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. Every /api/v1
// route requires a bearer token issued by tokens.
func RegisterRoutes(app *fiber.App, service *planner.Service, tokens *auth.Tokens) {
	v1 := app.Group("/api/v1", auth.Middleware(tokens))

	v1.Get("/outlook", func(c *fiber.Ctx) error {
		q, err := parseOutlookQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		view, err := service.Outlook(c.UserContext(), q.City, q.Week)
		if err != nil {
			return err
		}
		return c.JSON(view)
	})

	v1.Get("/cities", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"query":  c.Query("q"),
			"cities": service.SearchCities(c.UserContext(), c.Query("q")),
		})
	})

	v1.Get("/tasks", func(c *fiber.Ctx) error {
		list, err := service.ListTasks(c.UserContext())
		if err != nil {
			return err
		}
		if list == nil {
			list = []tasks.Task{}
		}
		return c.JSON(list)
	})

	v1.Get("/tasks/:id", func(c *fiber.Ctx) error {
		t, err := service.GetTask(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(t)
	})

	v1.Post("/tasks", func(c *fiber.Ctx) error {
		var body tasks.Task
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid task body")
		}

		created, err := service.CreateTask(c.UserContext(), body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	})

	v1.Put("/tasks/:id", func(c *fiber.Ctx) error {
		var body tasks.Task
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid task body")
		}

		updated, err := service.EditTask(c.UserContext(), c.Params("id"), body)
		if err != nil {
			return err
		}
		return c.JSON(updated)
	})

	v1.Post("/tasks/:id/reschedule", func(c *fiber.Ctx) error {
		t, moved, err := service.Reschedule(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"task":  t,
			"moved": moved,
		})
	})
}

// ErrorHandler renders every error as {"error": true, "message": ...} with a status
// derived from fiber errors or the domain sentinels.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, tasks.ErrInvalidTask):
		code = fiber.StatusBadRequest
	case errors.Is(err, tasks.ErrUnauthenticated):
		code = fiber.StatusUnauthorized
	case errors.Is(err, tasks.ErrForbidden):
		code = fiber.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		code = fiber.StatusConflict
	default:
		message = "internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}

// outlookQuery holds query parameters for the outlook endpoint.
type outlookQuery struct {
	City string `validate:"max=120"`
	Week int    `validate:"gte=-52,lte=52"`
}

func parseOutlookQuery(c *fiber.Ctx) (outlookQuery, error) {
	q := outlookQuery{City: c.Query("city")}

	if raw := c.Query("week"); raw != "" {
		week, err := strconv.Atoi(raw)
		if err != nil {
			return q, errors.New("week must be an integer")
		}
		q.Week = week
	}

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}
