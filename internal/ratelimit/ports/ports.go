// Package ports defines shared interfaces for the ratelimit module.
// Interfaces are placed here when consumed by multiple services to avoid duplication.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks WindowCounter,HealthChecker

import (
	"context"

	"crmdash/internal/ratelimit/models"
)

// WindowCounter decides whether one more request fits in a key's window.
// The shared (Redis) and fallback (in-memory) counters both implement it.
type WindowCounter interface {
	// Check records the request if admitted and returns the decision.
	Check(ctx context.Context, key models.RateLimitKey, policy models.TierPolicy) (*models.RateLimitDecision, error)

	// Peek reports the current window state without recording anything.
	Peek(ctx context.Context, key models.RateLimitKey, policy models.TierPolicy) (*models.RateLimitDecision, error)

	// Reset clears the window for a key.
	Reset(ctx context.Context, key models.RateLimitKey) error
}

// HealthChecker reports whether the shared store should be used.
type HealthChecker interface {
	// Healthy returns the cached verdict, probing at most once per cache period.
	Healthy(ctx context.Context) bool

	// MarkUnhealthy records a failure observed outside the probe.
	MarkUnhealthy()
}
