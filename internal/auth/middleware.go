package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/fieldwork-weather-planner/internal/tasks"
)

type userKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u tasks.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// ContextStore is the tasks.AuthStore backed by the request context.
type ContextStore struct{}

func (ContextStore) CurrentUser(ctx context.Context) (tasks.User, bool) {
	u, ok := ctx.Value(userKey{}).(tasks.User)
	return u, ok
}

// Middleware rejects requests without a valid bearer token and stores the
// caller in the request's user context.
func Middleware(t *Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		u, err := t.Parse(strings.TrimSpace(raw))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid bearer token")
		}

		c.SetUserContext(WithUser(c.UserContext(), u))
		return c.Next()
	}
}
