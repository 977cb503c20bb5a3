// Package policy maps a request to the tiers it must pass.
package policy

import (
	"strings"

	"crmdash/internal/ratelimit/models"
)

const (
	apiPrefix           = "/api/"
	authenticatedPrefix = "/api/v1/"
)

var authPrefixes = []string{"/api/auth/", "/api/v1/auth/"}

// Classify buckets a request path. Auth prefixes are matched before the
// general /api/v1/ prefix they overlap with.
func Classify(path string) models.EndpointClass {
	if !strings.HasPrefix(path, apiPrefix) {
		return models.ClassNone
	}
	for _, prefix := range authPrefixes {
		if strings.HasPrefix(path, prefix) {
			return models.ClassAuth
		}
	}
	if strings.HasPrefix(path, authenticatedPrefix) {
		return models.ClassAuthenticated
	}
	return models.ClassPublic
}

// Resolve returns the ordered tiers a request must pass, all of which must
// admit it. A nil result means the path is not rate limited.
//
// An authenticated-class path without a complete verified session is
// limited like any public path rather than rejected.
func Resolve(rc models.RequestContext) []models.TierCheck {
	switch Classify(rc.Path) {
	case models.ClassNone:
		return nil
	case models.ClassAuth:
		return []models.TierCheck{
			{Key: models.NewRateLimitKey(models.TierAuthIP, rc.IPAddress), Policy: models.AuthIPPolicy},
		}
	case models.ClassAuthenticated:
		if rc.Authenticated() {
			return []models.TierCheck{
				{Key: models.NewRateLimitKey(models.TierCompany, rc.CompanyID), Policy: models.CompanyPolicy},
				{Key: models.NewRateLimitKey(models.TierUser, rc.UserID), Policy: models.UserPolicy},
			}
		}
	}
	return []models.TierCheck{
		{Key: models.NewRateLimitKey(models.TierIP, rc.IPAddress), Policy: models.PublicIPPolicy},
	}
}

// RejectionMessage is the human readable 429 message for a denying tier.
// Fallback denials use a generic message since the fixed window cannot
// promise the tier's exact terms.
func RejectionMessage(tier models.Tier, usedFallback bool) string {
	if usedFallback {
		return "Rate limit exceeded. Please try again later."
	}
	switch tier {
	case models.TierCompany:
		return "Company request limit exceeded (60/min). Please try again shortly."
	case models.TierUser:
		return "User request limit exceeded (20/min). Please try again shortly."
	case models.TierIP:
		return "Too many requests from this IP address (10/min). Please try again in a minute."
	case models.TierAuthIP:
		return "Too many authentication attempts. Please try again in 15 minutes."
	default:
		return "Rate limit exceeded. Please try again later."
	}
}
