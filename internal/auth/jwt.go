// Package auth issues and verifies bearer tokens and exposes the caller as a tasks.User.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/i474232898/fieldwork-weather-planner/internal/tasks"
)

var ErrInvalidToken = errors.New("invalid token")

const DefaultTokenTTL = 24 * time.Hour

// Tokens signs and parses HS256 tokens carrying the user id, name and role.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewTokens(secret string, ttl time.Duration, clock clockwork.Clock) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, clock: clock}
}

func (t *Tokens) Generate(u tasks.User) (string, error) {
	now := t.clock.Now()
	claims := jwt.MapClaims{
		"user_id": u.ID,
		"name":    u.Name,
		"role":    string(u.Role),
		"exp":     now.Add(t.ttl).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *Tokens) Parse(tokenString string) (tasks.User, error) {
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return tasks.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	data, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return tasks.User{}, ErrInvalidToken
	}
	id, _ := data["user_id"].(string)
	role, _ := data["role"].(string)
	name, _ := data["name"].(string)
	if id == "" {
		return tasks.User{}, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}

	u := tasks.User{ID: id, Name: name, Role: tasks.Role(role)}
	switch u.Role {
	case tasks.RoleManager, tasks.RoleTechnician, tasks.RoleDispatcher:
	default:
		return tasks.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
	}
	return u, nil
}
