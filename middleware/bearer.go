package middleware

import (
	"errors"
	"net/http"
	"strings"
)

// Rejection outcomes. Their messages are the only text sent to clients.
var (
	ErrMissingCredentials   = errors.New("missing credentials")
	ErrMalformedCredentials = errors.New("malformed credentials")
	ErrInvalidToken         = errors.New("invalid or expired token")
)

const bearerScheme = "Bearer"

// ParseBearer extracts the credential from an Authorization header value of
// the form "Bearer <token>". The scheme must match exactly; one space
// separates it from a non-empty credential without spaces.
func ParseBearer(value string) (string, error) {
	scheme, credential, found := strings.Cut(value, " ")
	if !found || scheme != bearerScheme {
		return "", ErrMalformedCredentials
	}
	if credential == "" || strings.ContainsAny(credential, " \t\r\n") {
		return "", ErrMalformedCredentials
	}
	return credential, nil
}

// bearerFromRequest distinguishes an absent header from an unusable one
func bearerFromRequest(r *http.Request) (string, error) {
	values, ok := r.Header["Authorization"]
	if !ok || len(values) == 0 {
		return "", ErrMissingCredentials
	}
	if len(values) > 1 {
		return "", ErrMalformedCredentials
	}
	return ParseBearer(values[0])
}
