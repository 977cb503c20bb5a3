// Package health answers whether the shared rate limit store is reachable.
//
// Verdicts are cached for a short TTL so admission control does not pay a
// round trip per request. When the cache expires, exactly one probe runs;
// callers arriving while it is in flight share its result.
package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"crmdash/internal/ratelimit/metrics"
)

const (
	DefaultTimeout  = 500 * time.Millisecond
	DefaultCacheTTL = 5 * time.Second

	probeKey = "probe"
)

// Pinger is the slice of a Redis client the monitor needs.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

type Monitor struct {
	pinger  Pinger
	timeout time.Duration
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics

	group singleflight.Group

	mu        sync.RWMutex
	known     bool
	healthy   bool
	checkedAt time.Time
}

type Option func(*Monitor)

// WithTimeout bounds a single probe.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		m.timeout = d
	}
}

// WithCacheTTL sets how long a verdict is reused.
func WithCacheTTL(d time.Duration) Option {
	return func(m *Monitor) {
		m.ttl = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = mt
	}
}

func New(pinger Pinger, opts ...Option) (*Monitor, error) {
	if pinger == nil {
		return nil, errors.New("pinger is required")
	}
	m := &Monitor{
		pinger:  pinger,
		timeout: DefaultTimeout,
		ttl:     DefaultCacheTTL,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Healthy reports whether the shared store answered its most recent probe.
// It never returns an error: a failed or timed-out probe is simply false.
// Cancelling ctx abandons the wait but not the shared probe.
func (m *Monitor) Healthy(ctx context.Context) bool {
	if healthy, ok := m.cached(); ok {
		return healthy
	}

	// The probe outlives any single caller, so it must not inherit one
	// caller's cancellation.
	probeCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(probeKey, func() (any, error) {
		if healthy, ok := m.cached(); ok {
			return healthy, nil
		}
		return m.probe(probeCtx), nil
	})

	select {
	case res := <-ch:
		healthy, _ := res.Val.(bool)
		return healthy
	case <-ctx.Done():
		return false
	}
}

// MarkUnhealthy records a failure observed outside a probe, such as a counter
// round trip that errored. The verdict holds for a full cache TTL.
func (m *Monitor) MarkUnhealthy() {
	m.record(context.Background(), false)
}

func (m *Monitor) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.pinger.Ping(ctx).Err()
	healthy := err == nil
	if m.metrics != nil {
		m.metrics.RecordProbe(healthy)
	}
	if err != nil && m.logger != nil {
		m.logger.DebugContext(ctx, "shared store probe failed", "error", err)
	}
	m.record(ctx, healthy)
	return healthy
}

func (m *Monitor) cached() (healthy bool, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.known || m.now().Sub(m.checkedAt) >= m.ttl {
		return false, false
	}
	return m.healthy, true
}

func (m *Monitor) record(ctx context.Context, healthy bool) {
	m.mu.Lock()
	changed := !m.known || m.healthy != healthy
	m.known = true
	m.healthy = healthy
	m.checkedAt = m.now()
	m.mu.Unlock()

	if !changed || m.logger == nil {
		return
	}
	if healthy {
		m.logger.InfoContext(ctx, "shared rate limit store reachable")
		return
	}
	m.logger.WarnContext(ctx, "shared rate limit store unreachable, using in-memory fallback")
}
