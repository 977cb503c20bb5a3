package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmdash/pkg/platform/sentinel"
)

func TestRateLimitKeyString(t *testing.T) {
	t.Run("tier and identifier are joined", func(t *testing.T) {
		assert.Equal(t, "rate_limit:company:acme", NewRateLimitKey(TierCompany, "acme").String())
		assert.Equal(t, "rate_limit:auth:1.2.3.4", NewRateLimitKey(TierAuthIP, "1.2.3.4").String())
	})

	t.Run("delimiters in identifiers cannot forge another key", func(t *testing.T) {
		forged := NewRateLimitKey(TierUser, "x:rate_limit:company:acme")
		assert.Equal(t, "rate_limit:user:x_rate_limit_company_acme", forged.String())
	})

	t.Run("ipv6 addresses stay distinct", func(t *testing.T) {
		a := NewRateLimitKey(TierIP, "2001:db8::1").String()
		b := NewRateLimitKey(TierIP, "2001:db8::2").String()
		assert.NotEqual(t, a, b)
	})
}

func TestParseRateLimitKey(t *testing.T) {
	t.Run("tier and identifier", func(t *testing.T) {
		key, err := ParseRateLimitKey("company:acme")
		require.NoError(t, err)
		assert.Equal(t, NewRateLimitKey(TierCompany, "acme"), key)
	})

	t.Run("ipv6 identifier keeps its colons", func(t *testing.T) {
		key, err := ParseRateLimitKey("auth:2001:db8::1")
		require.NoError(t, err)
		assert.Equal(t, TierAuthIP, key.Tier)
		assert.Equal(t, "2001:db8::1", key.Identifier)
	})

	for _, raw := range []string{"", "ip", "ip:", "tenant:t1"} {
		t.Run("rejects "+raw, func(t *testing.T) {
			_, err := ParseRateLimitKey(raw)
			require.ErrorIs(t, err, sentinel.ErrInvalidInput)
		})
	}
}

func TestTierIsValid(t *testing.T) {
	for _, tier := range []Tier{TierCompany, TierUser, TierIP, TierAuthIP} {
		assert.True(t, tier.IsValid(), tier)
	}
	assert.False(t, Tier("tenant").IsValid())
	assert.False(t, Tier("").IsValid())
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("rounds partial seconds up", func(t *testing.T) {
		d := &RateLimitDecision{ResetAt: now.Add(59*time.Second + 100*time.Millisecond)}
		assert.Equal(t, 60, d.RetryAfter(now))
	})

	t.Run("never below one second", func(t *testing.T) {
		d := &RateLimitDecision{ResetAt: now.Add(-time.Second)}
		assert.Equal(t, 1, d.RetryAfter(now))
	})
}

func TestNewWindowEntry(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	entry := NewWindowEntry(now, "abc")

	assert.Equal(t, int64(1700000000123), entry.Timestamp)
	assert.Equal(t, "1700000000123-abc", entry.Token)
}

func TestRequestContextAuthenticated(t *testing.T) {
	assert.True(t, RequestContext{UserID: "u", CompanyID: "c"}.Authenticated())
	assert.False(t, RequestContext{UserID: "u"}.Authenticated())
	assert.False(t, RequestContext{CompanyID: "c"}.Authenticated())
}
