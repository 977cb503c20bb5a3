package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"crmdash/internal/ratelimit/models"
	"crmdash/internal/session"
	"crmdash/pkg/platform/middleware/metadata"
	"crmdash/pkg/platform/sentinel"
	"crmdash/pkg/requestcontext"
)

// Session cookies, in lookup order. The second name is kept for clients
// that predate the first.
var sessionCookies = []string{"__session", "session_token"}

// SessionVerifier validates a session token and returns its claims.
type SessionVerifier interface {
	Verify(token string) (*session.Claims, error)
}

// ContextExtractor derives the caller identity used for policy resolution.
// Session problems never fail a request: the caller is simply treated as
// anonymous.
type ContextExtractor struct {
	verifier SessionVerifier
	logger   *slog.Logger

	misconfigured sync.Once
}

func NewContextExtractor(verifier SessionVerifier, logger *slog.Logger) *ContextExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextExtractor{verifier: verifier, logger: logger}
}

// Extract builds the request context from the client address and the
// optional session cookie.
func (e *ContextExtractor) Extract(r *http.Request) models.RequestContext {
	rc := models.RequestContext{
		IPAddress: requestcontext.ClientIP(r.Context()),
		Path:      r.URL.Path,
	}
	if rc.IPAddress == "" {
		rc.IPAddress = metadata.ClientIPFromRequest(r)
	}

	token := sessionToken(r)
	if token == "" || e.verifier == nil {
		return rc
	}

	claims, err := e.verifier.Verify(token)
	switch {
	case err == nil:
		rc.UserID = claims.UserID
		rc.CompanyID = claims.CompanyID
	case errors.Is(err, sentinel.ErrMisconfigured):
		e.misconfigured.Do(func() {
			e.logger.ErrorContext(r.Context(), "session secret not configured, treating all sessions as anonymous",
				"env", "JWT_SECRET_KEY_CALL",
			)
		})
	default:
		e.logger.DebugContext(r.Context(), "session token rejected", "error", err)
	}
	return rc
}

func sessionToken(r *http.Request) string {
	for _, name := range sessionCookies {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}
