package testutil

import (
	"net/http"

	"crmdash/pkg/requestcontext"
)

// WithSession adds verified session identifiers to the request context.
// This simulates what the rate limit middleware does for a valid cookie.
func WithSession(req *http.Request, userID, companyID string) *http.Request {
	return req.WithContext(requestcontext.WithSession(req.Context(), userID, companyID))
}

// WithClientIP adds a resolved client IP to the request context.
func WithClientIP(req *http.Request, ip string) *http.Request {
	return req.WithContext(requestcontext.WithClientIP(req.Context(), ip))
}

// WithSessionCookie attaches a session token under the given cookie name.
func WithSessionCookie(req *http.Request, name, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: name, Value: token})
	return req
}
