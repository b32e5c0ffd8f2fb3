// Package ratelimit implements a fixed-window request counter keyed by
// client IP. It gates unauthenticated use of the shared upstream
// credential; callers presenting their own API key bypass it entirely.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// Prefix namespaces counter keys inside a shared store.
	Prefix = "fluxgate:ratelimit"

	// DefaultWindow and DefaultLimit match the production policy:
	// 100 free generations per 24 hours per IP.
	DefaultWindow = 1440 * time.Minute
	DefaultLimit  = 100
)

// Store increments a windowed counter and reports its current value.
// Implementations must create the key with the window TTL on first
// increment so counters expire with the window.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter makes binary admit/deny decisions against a Store.
type Limiter struct {
	store  Store
	window time.Duration
	limit  int64
}

// New creates a limiter with the production window and cap.
func New(store Store) *Limiter {
	return &Limiter{store: store, window: DefaultWindow, limit: DefaultLimit}
}

// NewWithPolicy creates a limiter with a custom window and cap.
func NewWithPolicy(store Store, window time.Duration, limit int64) *Limiter {
	return &Limiter{store: store, window: window, limit: limit}
}

// Allow reports whether the identifier may proceed. Store errors deny
// the request (fail-closed): an unavailable counter must not open the
// shared credential to unlimited use.
func (l *Limiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key := fmt.Sprintf("%s:%s", Prefix, identifier)
	count, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		return false, fmt.Errorf("rate limit store unavailable: %w", err)
	}
	return count <= l.limit, nil
}

// ClientIP extracts the client identifier from request headers:
// first X-Forwarded-For segment, then X-Real-Ip, then a fixed fallback.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return real
	}
	return "0.0.0.0"
}
