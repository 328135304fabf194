// Package ratelimit bounds request volume per caller with fixed windows.
//
// A Limiter applies one Policy on top of a Store. Stores own the atomic
// check-and-increment; the Limiter only interprets the resulting count.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Policy is a request cap over a window.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Built-in policies for general and administrative endpoints.
var (
	GeneralPolicy = Policy{Name: "general", Limit: 100, Window: 15 * time.Minute}
	AdminPolicy   = Policy{Name: "admin", Limit: 50, Window: 15 * time.Minute}
)

// Store increments the counter for key within a window of the given length.
// The window starts at the first hit and is not extended by later hits.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before retrying.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.Before(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter enforces a single Policy.
type Limiter struct {
	policy Policy
	store  Store
}

func NewLimiter(policy Policy, store Store) *Limiter {
	return &Limiter{policy: policy, store: store}
}

// Policy returns the enforced policy.
func (l *Limiter) Policy() Policy { return l.policy }

// Allow counts one request for caller and reports whether it fits the cap.
func (l *Limiter) Allow(ctx context.Context, caller string) (Decision, error) {
	count, resetAt, err := l.store.Increment(ctx, l.policy.Name+":"+caller, l.policy.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", l.policy.Name, err)
	}

	remaining := l.policy.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(l.policy.Limit),
		Limit:     l.policy.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
