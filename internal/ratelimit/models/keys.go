package models

import (
	"fmt"
	"strings"

	"crmdash/pkg/platform/sentinel"
)

// KeyPrefix namespaces every admission-control key in the shared store.
const KeyPrefix = "rate_limit"

// RateLimitKey identifies one counter: a tier plus the identifier it limits.
type RateLimitKey struct {
	Tier       Tier
	Identifier string
}

// NewRateLimitKey creates a key for the given tier and identifier.
func NewRateLimitKey(tier Tier, identifier string) RateLimitKey {
	return RateLimitKey{Tier: tier, Identifier: identifier}
}

// String renders the storage key, e.g. "rate_limit:user:42". The same string
// is used by the shared store and the in-memory fallback map.
func (k RateLimitKey) String() string {
	return KeyPrefix + ":" + string(k.Tier) + ":" + SanitizeKeySegment(k.Identifier)
}

// ParseRateLimitKey reads a "<tier>:<identifier>" pair such as "ip:1.2.3.4".
// Only the first ':' separates, so IPv6 identifiers parse as-is.
func ParseRateLimitKey(s string) (RateLimitKey, error) {
	tier, identifier, ok := strings.Cut(s, ":")
	if !ok || identifier == "" {
		return RateLimitKey{}, fmt.Errorf("%w: expected <tier>:<identifier>, got %q", sentinel.ErrInvalidInput, s)
	}
	if !Tier(tier).IsValid() {
		return RateLimitKey{}, fmt.Errorf("%w: unknown tier %q", sentinel.ErrInvalidInput, tier)
	}
	return NewRateLimitKey(Tier(tier), identifier), nil
}

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// to prevent key collision attacks where user-controlled identifiers containing
// ':' could manipulate adjacent rate limit buckets.
//
// Example: an identifier "user:admin" becomes "user_admin". IPv6 addresses are
// affected the same way, which keeps them unique since '_' never appears in them.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}
