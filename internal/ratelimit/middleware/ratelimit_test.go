package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"crmdash/internal/ratelimit/metrics"
	"crmdash/internal/ratelimit/models"
	"crmdash/internal/ratelimit/service/health"
	"crmdash/internal/ratelimit/service/requestlimit"
	"crmdash/internal/ratelimit/store/window"
	"crmdash/internal/session"
	"crmdash/pkg/requestcontext"
	"crmdash/pkg/testutil"
)

const testSecret = "test-session-secret"

// =============================================================================
// Gatekeeper Test Suite
// =============================================================================
// These tests run the full admission path (extractor, resolver, health
// monitor, both counters) against miniredis and assert only on HTTP output.

type GatekeeperSuite struct {
	suite.Suite
	mr       *miniredis.Miniredis
	client   *redis.Client
	now      time.Time
	tokens   *session.TokenService
	fallback *window.InMemoryStore
	handler  http.Handler
	logs     *bytes.Buffer

	// identity seen by the wrapped handler on the last request
	seenUserID string
}

func TestGatekeeperSuite(t *testing.T) {
	suite.Run(t, new(GatekeeperSuite))
}

func (s *GatekeeperSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr(), MaxRetries: -1})
	s.now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.tokens = session.NewTokenService(testSecret)
	s.logs = &bytes.Buffer{}
	s.handler = s.build(s.tokens)
}

func (s *GatekeeperSuite) TearDownTest() {
	_ = s.client.Close()
}

func (s *GatekeeperSuite) clock() time.Time {
	return s.now
}

func (s *GatekeeperSuite) build(verifier SessionVerifier, opts ...Option) http.Handler {
	logger := slog.New(slog.NewTextHandler(s.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := metrics.New(prometheus.NewRegistry())

	shared, err := window.NewRedisStore(s.client, window.WithClock(s.clock), window.WithMetrics(m))
	s.Require().NoError(err)
	s.fallback = window.NewInMemoryStore(window.WithMemoryClock(s.clock))
	monitor, err := health.New(s.client, health.WithLogger(logger))
	s.Require().NoError(err)
	svc, err := requestlimit.New(shared, s.fallback, monitor,
		requestlimit.WithLogger(logger),
		requestlimit.WithMetrics(m),
	)
	s.Require().NoError(err)

	opts = append([]Option{WithClock(s.clock)}, opts...)
	gate := New(svc, NewContextExtractor(verifier, logger), logger, opts...)
	return gate.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.seenUserID = requestcontext.UserID(r.Context())
		if r.URL.Path == "/api/auth/login" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func (s *GatekeeperSuite) request(method, path, ip string) *http.Request {
	req := testutil.NewRequest(s.T(), method, path)
	req.Header.Set("X-Forwarded-For", ip)
	return req
}

func (s *GatekeeperSuite) authed(path, userID, companyID string) *http.Request {
	token, err := s.tokens.Issue(userID, companyID, time.Hour)
	s.Require().NoError(err)
	return testutil.WithSessionCookie(s.request(http.MethodGet, path, "10.0.0.1"), "__session", token)
}

func (s *GatekeeperSuite) exceeded(rr *httptest.ResponseRecorder) *models.RateLimitExceededResponse {
	return testutil.UnmarshalResponse[models.RateLimitExceededResponse](s.T(), rr)
}

// =============================================================================
// End-to-end scenarios
// =============================================================================

func (s *GatekeeperSuite) TestPublicRouteBurstFromOneIP() {
	for i := range 10 {
		rr := testutil.DoRequest(s.handler, s.request(http.MethodGet, "/api/public/pricing", "1.2.3.4"))
		s.Require().Equal(http.StatusOK, rr.Code, "request %d", i+1)
		testutil.AssertHeader(s.T(), rr, HeaderLimit, "10")
		testutil.AssertHeader(s.T(), rr, HeaderRemaining, strconv.Itoa(9-i))
		testutil.AssertHeader(s.T(), rr, HeaderReset, "2026-01-01T12:01:00.000Z")
		s.Empty(rr.Header().Get(HeaderFallback))
	}

	rr := testutil.DoRequest(s.handler, s.request(http.MethodGet, "/api/public/pricing", "1.2.3.4"))
	s.Equal(http.StatusTooManyRequests, rr.Code)
	testutil.AssertHeader(s.T(), rr, HeaderRemaining, "0")
	testutil.AssertHeader(s.T(), rr, HeaderRetryAfter, "60")
	s.Equal("application/json", rr.Header().Get("Content-Type"))

	body := s.exceeded(rr)
	s.Equal("Too Many Requests", body.Error)
	s.Equal("Too many requests from this IP address (10/min). Please try again in a minute.", body.Message)

	other := testutil.DoRequest(s.handler, s.request(http.MethodGet, "/api/public/pricing", "5.6.7.8"))
	s.Equal(http.StatusOK, other.Code)
}

func (s *GatekeeperSuite) TestLoginAttemptsFromOneIP() {
	for i := range 5 {
		rr := testutil.DoRequest(s.handler, s.request(http.MethodPost, "/api/auth/login", "1.2.3.4"))
		s.Require().Equal(http.StatusUnauthorized, rr.Code, "attempt %d reaches the handler", i+1)
		testutil.AssertHeader(s.T(), rr, HeaderLimit, "5")
	}

	rr := testutil.DoRequest(s.handler, s.request(http.MethodPost, "/api/auth/login", "1.2.3.4"))
	s.Equal(http.StatusTooManyRequests, rr.Code)
	testutil.AssertHeader(s.T(), rr, HeaderRetryAfter, "900")
	s.Equal("Too many authentication attempts. Please try again in 15 minutes.", s.exceeded(rr).Message)
	s.True(s.mr.Exists("rate_limit:auth:1.2.3.4"))
}

func (s *GatekeeperSuite) TestStoreDownServesFromFallback() {
	s.mr.Close()

	for i := range models.UserPolicy.Limit {
		rr := testutil.DoRequest(s.handler, s.authed("/api/v1/contacts", "u1", "c1"))
		s.Require().Equal(http.StatusOK, rr.Code, "request %d", i+1)
		testutil.AssertHeader(s.T(), rr, HeaderFallback, "true")
		testutil.AssertHeader(s.T(), rr, HeaderLimit, "20")
		testutil.AssertHeader(s.T(), rr, HeaderRemaining, strconv.Itoa(models.UserPolicy.Limit-1-i))
	}

	rr := testutil.DoRequest(s.handler, s.authed("/api/v1/contacts", "u1", "c1"))
	s.Equal(http.StatusTooManyRequests, rr.Code)
	testutil.AssertHeader(s.T(), rr, HeaderFallback, "true")
	s.Equal("Rate limit exceeded. Please try again later.", s.exceeded(rr).Message)

	s.now = s.now.Add(models.UserPolicy.Window)
	rr = testutil.DoRequest(s.handler, s.authed("/api/v1/contacts", "u1", "c1"))
	s.Equal(http.StatusOK, rr.Code)
	testutil.AssertHeader(s.T(), rr, HeaderRemaining, strconv.Itoa(models.UserPolicy.Limit-1))
}

func (s *GatekeeperSuite) TestStoreFailureMidFlightFallsBack() {
	rr := testutil.DoRequest(s.handler, s.request(http.MethodGet, "/api/public/pricing", "1.2.3.4"))
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Empty(rr.Header().Get(HeaderFallback))

	// The monitor's cached verdict is still healthy; the counter call fails.
	s.mr.Close()
	rr = testutil.DoRequest(s.handler, s.request(http.MethodGet, "/api/public/pricing", "1.2.3.4"))
	s.Equal(http.StatusOK, rr.Code)
	testutil.AssertHeader(s.T(), rr, HeaderFallback, "true")
	s.Contains(s.logs.String(), "rate_limit_fallback_activated")
}

// =============================================================================
// Tier evaluation over HTTP
// =============================================================================

func (s *GatekeeperSuite) TestAuthenticatedRoutes() {
	s.Run("valid session is limited per company then user", func() {
		rr := testutil.DoRequest(s.handler, s.authed("/api/v1/contacts", "u-auth", "c-auth"))
		s.Equal(http.StatusOK, rr.Code)
		testutil.AssertHeader(s.T(), rr, HeaderLimit, "20")
		testutil.AssertHeader(s.T(), rr, HeaderRemaining, "19")
		s.Equal("u-auth", s.seenUserID)
		s.True(s.mr.Exists("rate_limit:company:c-auth"))
		s.True(s.mr.Exists("rate_limit:user:u-auth"))
		s.False(s.mr.Exists("rate_limit:ip:10.0.0.1"))
	})

	s.Run("legacy cookie name is accepted", func() {
		token, err := s.tokens.Issue("u-legacy", "c-legacy", time.Hour)
		s.Require().NoError(err)
		req := testutil.WithSessionCookie(s.request(http.MethodGet, "/api/v1/deals", "10.0.0.2"), "session_token", token)

		rr := testutil.DoRequest(s.handler, req)
		s.Equal(http.StatusOK, rr.Code)
		testutil.AssertHeader(s.T(), rr, HeaderLimit, "20")
		s.Equal("u-legacy", s.seenUserID)
	})

	s.Run("company denial leaves the user window untouched", func() {
		for i := range models.CompanyPolicy.Limit {
			_, err := s.mr.ZAdd("rate_limit:company:c-full", float64(s.now.Add(-time.Second).UnixMilli()), fmt.Sprintf("seed-%d", i))
			s.Require().NoError(err)
		}

		rr := testutil.DoRequest(s.handler, s.authed("/api/v1/contacts", "u-fresh", "c-full"))
		s.Equal(http.StatusTooManyRequests, rr.Code)
		testutil.AssertHeader(s.T(), rr, HeaderLimit, "60")
		testutil.AssertHeader(s.T(), rr, HeaderRetryAfter, "59")
		s.Equal("Company request limit exceeded (60/min). Please try again shortly.", s.exceeded(rr).Message)
		s.False(s.mr.Exists("rate_limit:user:u-fresh"))
	})

	s.Run("invalid token is downgraded to the public tier", func() {
		req := testutil.WithSessionCookie(s.request(http.MethodGet, "/api/v1/contacts", "10.9.9.9"), "__session", "garbage")

		rr := testutil.DoRequest(s.handler, req)
		s.Equal(http.StatusOK, rr.Code)
		testutil.AssertHeader(s.T(), rr, HeaderLimit, "10")
		s.Empty(s.seenUserID)
		s.True(s.mr.Exists("rate_limit:ip:10.9.9.9"))
	})
}

func (s *GatekeeperSuite) TestMissingSecretIsLoggedOnce() {
	handler := s.build(session.NewTokenService(""))
	token, err := s.tokens.Issue("u1", "c1", time.Hour)
	s.Require().NoError(err)

	for range 3 {
		req := testutil.WithSessionCookie(s.request(http.MethodGet, "/api/v1/contacts", "10.1.1.1"), "__session", token)
		rr := testutil.DoRequest(handler, req)
		s.Equal(http.StatusOK, rr.Code)
		testutil.AssertHeader(s.T(), rr, HeaderLimit, "10")
	}
	s.Equal(1, strings.Count(s.logs.String(), "session secret not configured"))
}

func (s *GatekeeperSuite) TestBypass() {
	s.Run("non api path is not limited", func() {
		for range 20 {
			rr := testutil.DoRequest(s.handler, s.request(http.MethodGet, "/dashboard", "1.2.3.4"))
			s.Equal(http.StatusOK, rr.Code)
			s.Empty(rr.Header().Get(HeaderLimit))
		}
		s.Empty(s.mr.Keys())
	})

	s.Run("disabled middleware passes everything", func() {
		handler := s.build(s.tokens, WithDisabled(true))
		for range 20 {
			rr := testutil.DoRequest(handler, s.request(http.MethodGet, "/api/public/pricing", "9.9.9.9"))
			s.Equal(http.StatusOK, rr.Code)
			s.Empty(rr.Header().Get(HeaderLimit))
		}
	})
}

func (s *GatekeeperSuite) TestEvaluatorErrorFailsOpen() {
	gate := New(failingEvaluator{}, NewContextExtractor(nil, nil), slog.New(slog.NewTextHandler(io.Discard, nil)))
	handler := gate.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := testutil.DoRequest(handler, s.request(http.MethodGet, "/api/public/pricing", "1.2.3.4"))
	s.Equal(http.StatusNoContent, rr.Code)
	s.Empty(rr.Header().Get(HeaderLimit))
}

func (s *GatekeeperSuite) TestNilLoggerUsesDefault() {
	s.Run("disabled gatekeeper logs without panicking", func() {
		s.NotPanics(func() {
			New(failingEvaluator{}, NewContextExtractor(nil, nil), nil, WithDisabled(true))
		})
	})

	s.Run("evaluator error is logged and the request passes", func() {
		handler := New(failingEvaluator{}, NewContextExtractor(nil, nil), nil).
			Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))

		var rr *httptest.ResponseRecorder
		s.NotPanics(func() {
			rr = testutil.DoRequest(handler, s.request(http.MethodGet, "/api/public/pricing", "1.2.3.4"))
		})
		s.Equal(http.StatusNoContent, rr.Code)
	})
}

type failingEvaluator struct{}

func (failingEvaluator) Evaluate(context.Context, []models.TierCheck) (*requestlimit.Result, error) {
	return nil, errors.New("fallback counter exploded")
}
