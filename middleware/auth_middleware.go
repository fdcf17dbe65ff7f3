package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/accreditation-api/oidc"
	"github.com/upb/accreditation-api/utils"
)

// TokenVerifier defines the interface for verifying bearer tokens
type TokenVerifier interface {
	// Verify checks a raw token and returns the verified claims
	Verify(ctx context.Context, token string) (*oidc.UserClaims, error)
}

// AuthMiddleware is the access gate in front of route handlers
type AuthMiddleware struct {
	verifier TokenVerifier
	policies *AccessPolicies
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. A nil policy table protects every route.
func NewAuthMiddleware(verifier TokenVerifier, policies *AccessPolicies, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		verifier: verifier,
		policies: policies,
		logger:   logger,
	}
}

// Policies returns the route policy table
func (m *AuthMiddleware) Policies() *AccessPolicies {
	return m.policies
}

// Guard wraps the handler registered for method and pattern according to its
// access policy. Public handlers are returned unchanged.
func (m *AuthMiddleware) Guard(method, pattern string, next http.Handler) http.Handler {
	if m.policies.Resolve(method, pattern) == Public {
		return next
	}
	return m.RequireAuth(next)
}

// Authenticate verifies the request's bearer token.
// Errors wrap ErrMissingCredentials, ErrMalformedCredentials or ErrInvalidToken.
func (m *AuthMiddleware) Authenticate(r *http.Request) (*oidc.UserClaims, error) {
	token, err := bearerFromRequest(r)
	if err != nil {
		return nil, err
	}

	claims, err := m.verifier.Verify(r.Context(), token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RequireAuth is a middleware that requires a valid bearer token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, err := m.Authenticate(r)
		if err != nil {
			m.logRejection(r, err)
			writeRejection(w, err)
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", GetRequestIDFromContext(ctx)),
			zap.String("sub", claims.Subject))

		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

// RequireRole is a middleware that requires a specific role.
// It must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			claims := GetClaimsFromContext(ctx)
			if claims == nil {
				m.logger.Error("claims not found in context",
					zap.String("request_id", requestID))
				writeRejection(w, ErrMissingCredentials)
				return
			}

			if !claims.HasRole(role) {
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("required_role", role),
					zap.Strings("roles", claims.Roles))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// logRejection logs key source outages at error level and everything else as a warning
func (m *AuthMiddleware) logRejection(r *http.Request, err error) {
	fields := []zap.Field{
		zap.String("request_id", GetRequestIDFromContext(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("reason", rejectionReason(err)),
		zap.Error(err),
	}

	if oidc.IsInfrastructure(err) {
		m.logger.Error("token verification failed: key source unavailable", fields...)
		return
	}
	m.logger.Warn("request rejected", fields...)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return "missing_credentials"
	case errors.Is(err, ErrMalformedCredentials):
		return "malformed_credentials"
	default:
		return oidc.Reason(err)
	}
}

// writeRejection writes a uniform 401. The body carries one of three fixed
// messages and never the underlying cause.
func writeRejection(w http.ResponseWriter, err error) {
	msg := ErrInvalidToken.Error()
	switch {
	case errors.Is(err, ErrMissingCredentials):
		msg = ErrMissingCredentials.Error()
	case errors.Is(err, ErrMalformedCredentials):
		msg = ErrMalformedCredentials.Error()
	}
	w.Header().Set("WWW-Authenticate", bearerScheme)
	_ = utils.WriteUnauthorized(w, msg)
}
