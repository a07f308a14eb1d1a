// Package tasks defines field-work tasks, the roles that act on them and the
// storage and identity boundaries the planner consumes.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Role string

const (
	RoleManager    Role = "manager"
	RoleTechnician Role = "technician"
	RoleDispatcher Role = "dispatcher"
)

type Status string

const (
	StatusToDo       Status = "ToDo"
	StatusInProgress Status = "InProgress"
	StatusDone       Status = "Done"
)

var (
	// ErrInvalidTask marks malformed task input. It is never softened.
	ErrInvalidTask = errors.New("invalid task")
	// ErrForbidden is returned when the current user's role may not perform an action.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated is returned when an action needs a current user and there is none.
	ErrUnauthenticated = errors.New("not authenticated")
)

var validate = validator.New()

// Task is a unit of field work scheduled on a calendar date in a city.
type Task struct {
	ID            string  `json:"id"`
	Title         string  `json:"title" validate:"required"`
	Description   string  `json:"description,omitempty"`
	Date          string  `json:"date" validate:"required,datetime=2006-01-02"`
	Role          Role    `json:"role" validate:"omitempty,oneof=manager technician dispatcher"`
	City          string  `json:"city" validate:"required"`
	DurationHours float64 `json:"durationHours" validate:"gte=0"`
	Status        Status  `json:"status" validate:"omitempty,oneof=ToDo InProgress Done"`
	Notes         string  `json:"notes,omitempty"`
}

// Normalize trims text fields and fills in the default role and status.
func (t Task) Normalize() Task {
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)
	t.City = strings.TrimSpace(t.City)
	t.Date = strings.TrimSpace(t.Date)
	t.Notes = strings.TrimSpace(t.Notes)
	if t.Role == "" {
		t.Role = RoleTechnician
	}
	if t.Status == "" {
		t.Status = StatusToDo
	}
	return t
}

// Validate checks required fields and enumerations. Errors wrap ErrInvalidTask.
func (t Task) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	return nil
}

// User is the authenticated caller.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

// CanReschedule reports whether u may move tasks between days.
func CanReschedule(u User) bool {
	return u.Role == RoleManager || u.Role == RoleDispatcher
}

// Store persists tasks.
type Store interface {
	List(ctx context.Context) ([]Task, error)
	Get(ctx context.Context, id string) (Task, error)
	Add(ctx context.Context, task Task) error
	Update(ctx context.Context, task Task) error
}

// AuthStore exposes the user behind the current request.
type AuthStore interface {
	CurrentUser(ctx context.Context) (User, bool)
}
