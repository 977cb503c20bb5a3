package metadata

import (
	"net"
	"net/http"
	"strings"

	"crmdash/pkg/requestcontext"
)

// DefaultClientIP is used when no address can be derived from the request.
const DefaultClientIP = "127.0.0.1"

// ClientMetadata resolves the client IP once and stores it in the request
// context. Apply it before any middleware that keys on the client address.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientIP(r.Context(), ClientIPFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest extracts the client IP, preferring proxy headers.
// Precedence: first X-Forwarded-For entry, X-Real-IP, the connection's
// remote host, then DefaultClientIP.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}

	return DefaultClientIP
}
