// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services and handlers read them without
// importing net/http:
//
//	userID := requestcontext.UserID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithSession(ctx, "user-1", "company-1")
package requestcontext

import "context"

type (
	userIDKey    struct{}
	companyIDKey struct{}
	clientIPKey  struct{}
	requestIDKey struct{}
)

// UserID retrieves the verified session's user ID, or "" when there is none.
func UserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey{}).(string); ok {
		return v
	}
	return ""
}

// CompanyID retrieves the verified session's company ID, or "" when there is none.
func CompanyID(ctx context.Context) string {
	if v, ok := ctx.Value(companyIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithSession injects verified session identifiers into the context.
func WithSession(ctx context.Context, userID, companyID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey{}, userID)
	return context.WithValue(ctx, companyIDKey{}, companyID)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects the client IP address into the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}
