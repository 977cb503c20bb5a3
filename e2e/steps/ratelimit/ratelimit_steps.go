package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	SetClientIP(ip string)
	POST(path string, body any) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseHeader(key string) string
}

// RegisterSteps registers rate limiting step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^a client from a fresh IP address$`, steps.freshClientIP)
	ctx.Step(`^the client sends (\d+) (GET|POST) requests to "([^"]*)"$`, steps.sendRequests)
	ctx.Step(`^all of them should be admitted$`, steps.allAdmitted)
	ctx.Step(`^the remaining counts should count down from (\d+) to (\d+)$`, steps.remainingCountsDown)
	ctx.Step(`^the next (GET|POST) request to "([^"]*)" should return (\d+)$`, steps.nextRequestShouldReturn)
	ctx.Step(`^the response should carry a Retry-After of about (\d+) seconds$`, steps.retryAfterAbout)
	ctx.Step(`^the response error should be "([^"]*)"$`, steps.responseErrorShouldBe)
	ctx.Step(`^no rate limit headers should be present$`, steps.noRateLimitHeaders)
}

type ratelimitSteps struct {
	tc TestContext

	statuses   []int
	remainings []string
	limits     []string
}

// freshClientIP picks a random private address so reruns against the same
// store do not see each other's windows.
func (s *ratelimitSteps) freshClientIP(ctx context.Context) error {
	s.statuses, s.remainings, s.limits = nil, nil, nil
	s.tc.SetClientIP(fmt.Sprintf("10.%d.%d.%d", rand.IntN(256), rand.IntN(256), 1+rand.IntN(254)))
	return nil
}

func (s *ratelimitSteps) send(method, path string) error {
	if method == http.MethodPost {
		return s.tc.POST(path, map[string]string{"email": "someone@example.com", "password": "wrong"})
	}
	return s.tc.GET(path, nil)
}

func (s *ratelimitSteps) sendRequests(ctx context.Context, n int, method, path string) error {
	for range n {
		if err := s.send(method, path); err != nil {
			return err
		}
		s.statuses = append(s.statuses, s.tc.GetLastResponseStatus())
		s.remainings = append(s.remainings, s.tc.GetLastResponseHeader("X-RateLimit-Remaining"))
		s.limits = append(s.limits, s.tc.GetLastResponseHeader("X-RateLimit-Limit"))
	}
	return nil
}

func (s *ratelimitSteps) allAdmitted(ctx context.Context) error {
	for i, status := range s.statuses {
		if status == http.StatusTooManyRequests {
			return fmt.Errorf("request %d was rate limited", i+1)
		}
	}
	return nil
}

func (s *ratelimitSteps) remainingCountsDown(ctx context.Context, from, to int) error {
	want := from
	for i, got := range s.remainings {
		if got != strconv.Itoa(want) {
			return fmt.Errorf("request %d: expected remaining %d, got %q", i+1, want, got)
		}
		want--
	}
	if want+1 != to {
		return fmt.Errorf("expected countdown to end at %d, ended at %d", to, want+1)
	}
	return nil
}

func (s *ratelimitSteps) nextRequestShouldReturn(ctx context.Context, method, path string, status int) error {
	if err := s.send(method, path); err != nil {
		return err
	}
	if got := s.tc.GetLastResponseStatus(); got != status {
		return fmt.Errorf("expected status %d, got %d", status, got)
	}
	return nil
}

func (s *ratelimitSteps) retryAfterAbout(ctx context.Context, seconds int) error {
	raw := s.tc.GetLastResponseHeader("Retry-After")
	got, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("Retry-After %q is not an integer", raw)
	}
	if got < seconds-2 || got > seconds {
		return fmt.Errorf("expected Retry-After about %d, got %d", seconds, got)
	}
	return nil
}

func (s *ratelimitSteps) responseErrorShouldBe(ctx context.Context, want string) error {
	got, err := s.tc.GetResponseField("error")
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected error %q, got %v", want, got)
	}
	return nil
}

func (s *ratelimitSteps) noRateLimitHeaders(ctx context.Context) error {
	for i, limit := range s.limits {
		if limit != "" {
			return fmt.Errorf("request %d carried X-RateLimit-Limit %q", i+1, limit)
		}
	}
	return nil
}
