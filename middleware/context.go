package middleware

import (
	"context"

	"github.com/upb/accreditation-api/oidc"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// ClaimsKey is the context key for verified user claims
	ClaimsKey contextKey = "claims"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetClaimsFromContext retrieves verified claims from context, nil on public routes
func GetClaimsFromContext(ctx context.Context) *oidc.UserClaims {
	if claims, ok := ctx.Value(ClaimsKey).(*oidc.UserClaims); ok {
		return claims
	}
	return nil
}

// WithClaims adds verified claims to the context
func WithClaims(ctx context.Context, claims *oidc.UserClaims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// MustClaims returns the verified claims and panics when there are none.
// Only handlers registered behind the gate may call it.
func MustClaims(ctx context.Context) *oidc.UserClaims {
	claims := GetClaimsFromContext(ctx)
	if claims == nil {
		panic("middleware: no verified claims in context; route is not behind RequireAuth")
	}
	return claims
}
