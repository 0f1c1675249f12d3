// Package ratelimit provides keyed attempt budgets for brute-force
// protection. Local keeps token buckets in process; Redis shares fixed-window
// counters between replicas.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the backing store cannot be reached. Callers
// decide whether to fail open or closed.
var ErrUnavailable = errors.New("ratelimit: backend unavailable")

// Limiter admits or rejects one attempt for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config is a budget of Requests per Window. Burst only applies to Local; a
// zero Burst means Requests.
type Config struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// Common budgets.
var (
	// Strict guards credential checks: 5 attempts per minute.
	Strict = Config{Requests: 5, Window: time.Minute, Burst: 5}

	// Moderate guards token refresh: 20 attempts per minute.
	Moderate = Config{Requests: 20, Window: time.Minute, Burst: 20}
)

func (c Config) normalised() Config {
	if c.Requests <= 0 {
		c.Requests = Strict.Requests
	}
	if c.Window <= 0 {
		c.Window = Strict.Window
	}
	if c.Burst <= 0 {
		c.Burst = c.Requests
	}
	return c
}

// Unlimited admits everything.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }

// Key joins a scope and an identifier, e.g. Key("login", "alice").
func Key(scope, id string) string {
	return scope + ":" + id
}
