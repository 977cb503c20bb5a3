package models

import (
	"fmt"
	"math"
	"time"
)

// Tier is one independently evaluated rate limit dimension.
type Tier string

const (
	TierCompany Tier = "company"
	TierUser    Tier = "user"
	TierIP      Tier = "ip"
	// TierAuthIP is keyed by IP like TierIP but counts authentication attempts only.
	TierAuthIP Tier = "auth"
)

// IsValid checks if the tier is one of the supported enum values.
func (t Tier) IsValid() bool {
	switch t {
	case TierCompany, TierUser, TierIP, TierAuthIP:
		return true
	}
	return false
}

func (t Tier) String() string {
	return string(t)
}

// IsIPKeyed reports whether identifiers for this tier are client IP addresses.
func (t Tier) IsIPKeyed() bool {
	return t == TierIP || t == TierAuthIP
}

// EndpointClass categorizes request paths for admission control.
type EndpointClass string

const (
	// ClassNone: outside the API namespace, never rate limited.
	ClassNone EndpointClass = "none"
	// ClassAuth: login, registration and token refresh (/api/auth/*, /api/v1/auth/*).
	ClassAuth EndpointClass = "auth"
	// ClassAuthenticated: session-backed API (/api/v1/*).
	ClassAuthenticated EndpointClass = "authenticated"
	// ClassPublic: every other /api/* path.
	ClassPublic EndpointClass = "public"
)

// TierPolicy is the limit applied to a single tier.
type TierPolicy struct {
	Limit  int
	Window time.Duration
}

// WindowSeconds returns the window length in whole seconds.
func (p TierPolicy) WindowSeconds() int {
	return int(p.Window / time.Second)
}

// Fixed tier policies. These are not configurable.
var (
	CompanyPolicy  = TierPolicy{Limit: 60, Window: time.Minute}
	UserPolicy     = TierPolicy{Limit: 20, Window: time.Minute}
	AuthIPPolicy   = TierPolicy{Limit: 5, Window: 15 * time.Minute}
	PublicIPPolicy = TierPolicy{Limit: 10, Window: time.Minute}
)

// MaxWindow is the longest window of any fixed policy. In-memory state older
// than this can never influence a decision.
const MaxWindow = 15 * time.Minute

// TierCheck pairs a counter key with the policy it is evaluated against.
type TierCheck struct {
	Key    RateLimitKey
	Policy TierPolicy
}

// RequestContext is the caller identity derived once per request.
type RequestContext struct {
	IPAddress string
	UserID    string
	CompanyID string
	Path      string
}

// Authenticated reports whether a verified session supplied both user and company.
func (c RequestContext) Authenticated() bool {
	return c.UserID != "" && c.CompanyID != ""
}

// RateLimitDecision is the outcome of evaluating one tier.
type RateLimitDecision struct {
	Allowed      bool      `json:"allowed"`
	Limit        int       `json:"limit"`
	Remaining    int       `json:"remaining"`
	ResetAt      time.Time `json:"reset_at"`
	UsedFallback bool      `json:"used_fallback"`
}

// RetryAfter returns the whole seconds until ResetAt, never less than one.
func (d *RateLimitDecision) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(d.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// WindowEntry is one admitted request recorded in a sliding window. Token is
// the sorted-set member used to add the entry and, on denial, to remove it.
type WindowEntry struct {
	Timestamp int64
	Token     string
}

// NewWindowEntry builds an entry scored at now (in milliseconds). The suffix
// must be unique per call; the resulting Token is the entry's only identity.
func NewWindowEntry(now time.Time, suffix string) WindowEntry {
	ms := now.UnixMilli()
	return WindowEntry{
		Timestamp: ms,
		Token:     fmt.Sprintf("%d-%s", ms, suffix),
	}
}
