// Package limiter defines interfaces and implementations for login rate limiting.
package limiter

import (
	"context"
	"time"
)

// Limiter controls login attempts and temporary lockouts per (emp_code, ip).
type Limiter interface {
	// Allow reports whether login is currently allowed and an optional retry-after.
	Allow(ctx context.Context, empCode string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, empCode string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, empCode string, ipHash []byte) (bool, time.Duration, error)
}
