package window

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"crmdash/internal/ratelimit/models"
)

const (
	defaultSweepInterval = time.Minute
	defaultMaxAge        = models.MaxWindow
)

// InMemoryStore is the process-local fallback counter used while the shared
// store is unreachable. It is a fixed window, not a sliding one: a key's
// count resets wholesale once its window has elapsed. Every decision it
// returns is flagged UsedFallback. State is never reconciled with Redis.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow

	now           func() time.Time
	sweepInterval time.Duration
	maxAge        time.Duration
	logger        *slog.Logger
}

// fixedWindow tracks admissions since start for one key.
type fixedWindow struct {
	count int
	start time.Time
}

type MemoryOption func(*InMemoryStore)

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

// WithSweepInterval sets how often Run evicts stale windows.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(s *InMemoryStore) {
		s.sweepInterval = d
	}
}

// WithMaxAge sets how long after its start a window is kept. It must be at
// least the longest policy window in use.
func WithMaxAge(d time.Duration) MemoryOption {
	return func(s *InMemoryStore) {
		s.maxAge = d
	}
}

func WithMemoryLogger(logger *slog.Logger) MemoryOption {
	return func(s *InMemoryStore) {
		s.logger = logger
	}
}

// NewInMemoryStore creates an empty fallback counter. Call Run to start the
// background sweep; without it, memory grows with the number of keys seen.
func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		windows:       make(map[string]*fixedWindow),
		now:           time.Now,
		sweepInterval: defaultSweepInterval,
		maxAge:        defaultMaxAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check admits the request if the key's current fixed window has capacity.
// Nothing is written for a denied request.
func (s *InMemoryStore) Check(_ context.Context, key models.RateLimitKey, policy models.TierPolicy) (*models.RateLimitDecision, error) {
	now := s.now()
	k := key.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[k]
	if w == nil || now.Sub(w.start) >= policy.Window {
		w = &fixedWindow{count: 1, start: now}
		s.windows[k] = w
		return s.decision(true, policy, policy.Limit-1, w.start), nil
	}

	if w.count >= policy.Limit {
		return s.decision(false, policy, 0, w.start), nil
	}

	w.count++
	return s.decision(true, policy, policy.Limit-w.count, w.start), nil
}

// Peek reports the key's current fixed window without counting a request.
func (s *InMemoryStore) Peek(_ context.Context, key models.RateLimitKey, policy models.TierPolicy) (*models.RateLimitDecision, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key.String()]
	if w == nil || now.Sub(w.start) >= policy.Window {
		return s.decision(true, policy, policy.Limit, now), nil
	}
	remaining := max(policy.Limit-w.count, 0)
	return s.decision(remaining > 0, policy, remaining, w.start), nil
}

// Reset clears the rate limit counter for a key.
func (s *InMemoryStore) Reset(_ context.Context, key models.RateLimitKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key.String())
	return nil
}

// Len returns the number of tracked keys.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Sweep drops windows that started more than maxAge ago and returns how many
// were removed.
func (s *InMemoryStore) Sweep() int {
	cutoff := s.now().Add(-s.maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, w := range s.windows {
		if w.start.Before(cutoff) {
			delete(s.windows, k)
			removed++
		}
	}
	return removed
}

// Run sweeps stale windows every sweep interval until ctx is cancelled. It
// blocks, so callers own its lifecycle (typically an errgroup in main).
func (s *InMemoryStore) Run(ctx context.Context) error {
	if s.sweepInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 && s.logger != nil {
				s.logger.DebugContext(ctx, "swept fallback rate limit windows", "removed", removed)
			}
		}
	}
}

func (s *InMemoryStore) decision(allowed bool, policy models.TierPolicy, remaining int, start time.Time) *models.RateLimitDecision {
	return &models.RateLimitDecision{
		Allowed:      allowed,
		Limit:        policy.Limit,
		Remaining:    remaining,
		ResetAt:      start.Add(policy.Window),
		UsedFallback: true,
	}
}
