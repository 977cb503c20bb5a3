package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"crmdash/internal/ratelimit/models"
	"crmdash/internal/ratelimit/service/policy"
	"crmdash/internal/ratelimit/service/requestlimit"
	"crmdash/pkg/platform/httputil"
	"crmdash/pkg/platform/privacy"
	"crmdash/pkg/requestcontext"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderFallback   = "X-RateLimit-Fallback"
	HeaderRetryAfter = "Retry-After"

	resetLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Evaluator runs a request's tier checks.
type Evaluator interface {
	Evaluate(ctx context.Context, checks []models.TierCheck) (*requestlimit.Result, error)
}

// Middleware is the admission gate in front of the API.
type Middleware struct {
	evaluator Evaluator
	extractor *ContextExtractor
	logger    *slog.Logger
	disabled  bool
	now       func() time.Time
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for local development).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithClock overrides the time source used for Retry-After.
func WithClock(now func() time.Time) Option {
	return func(m *Middleware) {
		m.now = now
	}
}

// New builds the gatekeeper. A nil logger falls back to slog.Default().
func New(evaluator Evaluator, extractor *ContextExtractor, logger *slog.Logger, opts ...Option) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Middleware{
		evaluator: evaluator,
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Handler applies admission control. Non-API paths pass straight through.
// For everything else the verified session (if any) is stored in the
// request context for downstream handlers.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled || policy.Classify(r.URL.Path) == models.ClassNone {
			next.ServeHTTP(w, r)
			return
		}

		rc := m.extractor.Extract(r)
		ctx := requestcontext.WithClientIP(r.Context(), rc.IPAddress)
		if rc.Authenticated() {
			ctx = requestcontext.WithSession(ctx, rc.UserID, rc.CompanyID)
		}
		r = r.WithContext(ctx)

		result, err := m.evaluator.Evaluate(ctx, policy.Resolve(rc))
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to evaluate rate limits",
				"error", err,
				"ip_prefix", privacy.AnonymizeIP(rc.IPAddress),
				"path", rc.Path,
			)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)

		if !result.Allowed {
			m.writeRateLimitExceeded(w, result)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func addRateLimitHeaders(w http.ResponseWriter, result *requestlimit.Result) {
	if result == nil || result.Decision == nil {
		return
	}
	h := w.Header()
	h.Set(HeaderLimit, strconv.Itoa(result.Decision.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(result.Decision.Remaining))
	h.Set(HeaderReset, result.Decision.ResetAt.UTC().Format(resetLayout))
	if result.UsedFallback {
		h.Set(HeaderFallback, "true")
	}
}

func (m *Middleware) writeRateLimitExceeded(w http.ResponseWriter, result *requestlimit.Result) {
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(result.Decision.RetryAfter(m.now())))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:   "Too Many Requests",
		Message: policy.RejectionMessage(result.Tier, result.Decision.UsedFallback),
	})
}
