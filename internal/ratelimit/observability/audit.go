// Package observability provides audit logging helpers for the ratelimit module.
package observability

import (
	"context"
	"log/slog"

	"crmdash/internal/ratelimit/models"
	"crmdash/pkg/platform/privacy"
	"crmdash/pkg/requestcontext"
)

// LogAudit logs a security-relevant rate limit event, enriched with the
// request ID so rejections can be correlated with access logs.
func LogAudit(ctx context.Context, logger *slog.Logger, event string, attrList ...any) {
	if logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}
	args := append(attrList, "event", event, "log_type", "audit")
	logger.WarnContext(ctx, event, args...)
}

// LogIdentifier returns the identifier as it may appear in logs. IP-keyed
// tiers are reduced to their network prefix; user and company IDs are opaque.
func LogIdentifier(key models.RateLimitKey) string {
	if key.Tier.IsIPKeyed() {
		return privacy.AnonymizeIP(key.Identifier)
	}
	return key.Identifier
}
