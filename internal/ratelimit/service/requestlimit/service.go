// Package requestlimit evaluates a request's tiers against the shared or
// fallback window counter.
package requestlimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crmdash/internal/ratelimit/metrics"
	"crmdash/internal/ratelimit/models"
	"crmdash/internal/ratelimit/observability"
	"crmdash/internal/ratelimit/ports"
	"crmdash/pkg/platform/sentinel"
)

const tracerName = "crmdash/internal/ratelimit/service/requestlimit"

// Result is the outcome of evaluating every tier a request resolved to.
type Result struct {
	Allowed bool
	// Tier and Decision belong to the denying tier, or to the last tier
	// evaluated when all admitted. Both are zero when nothing was checked.
	Tier     models.Tier
	Decision *models.RateLimitDecision
	// UsedFallback is set if any evaluated tier was served by the fallback.
	UsedFallback bool
}

type Service struct {
	shared   ports.WindowCounter
	fallback ports.WindowCounter
	health   ports.HealthChecker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(
	shared ports.WindowCounter,
	fallback ports.WindowCounter,
	health ports.HealthChecker,
	opts ...Option,
) (*Service, error) {
	if shared == nil {
		return nil, errors.New("shared counter is required")
	}
	if fallback == nil {
		return nil, errors.New("fallback counter is required")
	}
	if health == nil {
		return nil, errors.New("health checker is required")
	}

	svc := &Service{
		shared:   shared,
		fallback: fallback,
		health:   health,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Evaluate checks tiers in order and stops at the first denial, so a tier
// after a denying one is never written to. An error is only returned when
// the fallback counter itself fails; shared store failures are absorbed.
func (s *Service) Evaluate(ctx context.Context, checks []models.TierCheck) (*Result, error) {
	result := &Result{Allowed: true}

	for _, check := range checks {
		decision, err := s.checkTier(ctx, check)
		if err != nil {
			return nil, err
		}

		result.Tier = check.Key.Tier
		result.Decision = decision
		result.UsedFallback = result.UsedFallback || decision.UsedFallback

		if !decision.Allowed {
			result.Allowed = false
			if s.metrics != nil {
				s.metrics.RecordRejection(check.Key.Tier.String())
			}
			observability.LogAudit(ctx, s.logger, check.Key.Tier.String()+"_rate_limit_exceeded",
				"identifier", observability.LogIdentifier(check.Key),
				"limit", check.Policy.Limit,
				"window_seconds", check.Policy.WindowSeconds(),
				"fallback", decision.UsedFallback,
			)
			return result, nil
		}
	}

	return result, nil
}

func (s *Service) checkTier(ctx context.Context, check models.TierCheck) (*models.RateLimitDecision, error) {
	tier := check.Key.Tier.String()
	ctx, span := s.tracer.Start(ctx, "ratelimit.check_tier",
		trace.WithAttributes(attribute.String("ratelimit.tier", tier)),
	)
	defer span.End()

	decision, err := s.withCounter(ctx, check, span, ports.WindowCounter.Check)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback counter failed")
		return nil, fmt.Errorf("check %s tier: %w", tier, err)
	}

	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", decision.Allowed),
		attribute.Bool("ratelimit.fallback", decision.UsedFallback),
		attribute.Int("ratelimit.remaining", decision.Remaining),
	)
	if s.metrics != nil {
		s.metrics.RecordCheck(tier, decision.Allowed)
		if decision.UsedFallback {
			s.metrics.RecordFallback(tier)
		}
	}
	return decision, nil
}

type counterOp func(ports.WindowCounter, context.Context, models.RateLimitKey, models.TierPolicy) (*models.RateLimitDecision, error)

// withCounter runs op on the shared counter when the store is healthy and on
// the fallback otherwise. A shared failure marks the store unhealthy and the
// same op is retried once on the fallback.
func (s *Service) withCounter(ctx context.Context, check models.TierCheck, span trace.Span, op counterOp) (*models.RateLimitDecision, error) {
	if s.health.Healthy(ctx) {
		decision, err := op(s.shared, ctx, check.Key, check.Policy)
		if err == nil {
			return decision, nil
		}

		s.health.MarkUnhealthy()
		if s.metrics != nil {
			s.metrics.RecordStoreError()
		}
		if span != nil {
			span.RecordError(err)
		}
		observability.LogAudit(ctx, s.logger, "rate_limit_fallback_activated",
			"tier", check.Key.Tier.String(),
			"identifier", observability.LogIdentifier(check.Key),
			"error", err,
		)
	}

	decision, err := op(s.fallback, ctx, check.Key, check.Policy)
	if err != nil {
		return nil, err
	}
	decision.UsedFallback = true
	return decision, nil
}

// Status reports the caller's company, user and ip windows without counting
// a request. rc must carry a verified session.
func (s *Service) Status(ctx context.Context, rc models.RequestContext) (*models.StatusResponse, error) {
	if !rc.Authenticated() {
		return nil, fmt.Errorf("%w: status requires a verified session", sentinel.ErrInvalidInput)
	}

	checks := []models.TierCheck{
		{Key: models.NewRateLimitKey(models.TierCompany, rc.CompanyID), Policy: models.CompanyPolicy},
		{Key: models.NewRateLimitKey(models.TierUser, rc.UserID), Policy: models.UserPolicy},
		{Key: models.NewRateLimitKey(models.TierIP, rc.IPAddress), Policy: models.PublicIPPolicy},
	}

	resp := &models.StatusResponse{}
	targets := []*models.TierStatus{&resp.Company, &resp.User, &resp.IP}
	for i, check := range checks {
		decision, err := s.withCounter(ctx, check, nil, ports.WindowCounter.Peek)
		if err != nil {
			return nil, fmt.Errorf("peek %s tier: %w", check.Key.Tier, err)
		}
		*targets[i] = models.TierStatus{
			Limit:     decision.Limit,
			Remaining: decision.Remaining,
			ResetAt:   decision.ResetAt.UTC(),
		}
		resp.Fallback = resp.Fallback || decision.UsedFallback
	}
	return resp, nil
}
