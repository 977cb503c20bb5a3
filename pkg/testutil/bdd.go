package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// Given, When, Then and And name nested subtests after the scenario step they
// describe, so `go test -run 'Given_a_public_API_route'` selects one scenario.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+desc, fn)
}

func And(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("And "+desc, fn)
}

// Burst sends n requests built by newReq to handler, one after another, and
// returns every recorder in order.
func Burst(handler http.Handler, n int, newReq func(i int) *http.Request) []*httptest.ResponseRecorder {
	out := make([]*httptest.ResponseRecorder, 0, n)
	for i := range n {
		out = append(out, DoRequest(handler, newReq(i)))
	}
	return out
}
