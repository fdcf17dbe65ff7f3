package oidc

import "errors"

var (
	// ErrMalformedToken is returned when the token cannot be decoded
	ErrMalformedToken = errors.New("malformed token")

	// ErrMissingKeyID is returned when the token header carries no kid
	ErrMissingKeyID = errors.New("missing key id")

	// ErrKeyResolutionFailed wraps every key resolver failure
	ErrKeyResolutionFailed = errors.New("key resolution failed")

	// ErrInvalidSignature is returned when the signature does not verify against the resolved key
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrClaimValidationFailed is returned when issuer or timing claims are rejected
	ErrClaimValidationFailed = errors.New("claim validation failed")

	// ErrUnknownKey is returned when the kid is absent even after a fresh fetch
	ErrUnknownKey = errors.New("unknown signing key")

	// ErrKeySourceUnavailable is returned when the JWKS endpoint cannot be fetched or parsed
	ErrKeySourceUnavailable = errors.New("key source unavailable")

	// ErrRateLimited is returned when key fetch attempts exceed the allowed rate
	ErrRateLimited = errors.New("key fetch rate limited")
)

// Reason returns a short, stable name for the failure kind in err.
// It is meant for logs and must not be sent to clients.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, ErrMissingKeyID):
		return "missing_key_id"
	case errors.Is(err, ErrUnknownKey):
		return "unknown_key"
	case errors.Is(err, ErrKeySourceUnavailable):
		return "key_source_unavailable"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrKeyResolutionFailed):
		return "key_resolution_failed"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrClaimValidationFailed):
		return "claim_validation_failed"
	default:
		return "unknown"
	}
}

// IsInfrastructure reports whether err was caused by the key source rather than the caller
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrKeySourceUnavailable)
}
