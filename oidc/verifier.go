package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SigningAlgorithm is the only accepted token algorithm.
	// The header "alg" is never used to pick the verification method.
	SigningAlgorithm = "RS256"

	// ClockSkew is the tolerance applied to iat, nbf and exp
	ClockSkew = 30 * time.Second
)

// tokenHeader holds the untrusted header fields needed to pick a key
type tokenHeader struct {
	Algorithm string
	KeyID     string
}

// decodedToken is a structurally decoded token whose signature has not been
// checked. It never leaves this package.
type decodedToken struct {
	Header  tokenHeader
	Payload jwt.MapClaims
}

// decodeToken splits and decodes raw without verifying it
func decodeToken(raw string) (*decodedToken, error) {
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil && (token == nil || errors.Is(err, jwt.ErrTokenMalformed)) {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	// An unknown alg still decodes; the verify phase rejects it.

	alg, _ := token.Header["alg"].(string)
	kid, _ := token.Header["kid"].(string)
	payload, _ := token.Claims.(jwt.MapClaims)

	return &decodedToken{
		Header:  tokenHeader{Algorithm: alg, KeyID: kid},
		Payload: payload,
	}, nil
}

// Verifier checks bearer tokens issued by a single trusted issuer
type Verifier struct {
	issuer   string
	resolver KeyResolver
	mapper   ClaimsMapper
	parser   *jwt.Parser
	now      func() time.Time
}

// VerifierOption configures a Verifier
type VerifierOption func(*Verifier)

// WithClaimsMapper replaces the default PathClaimsMapper
func WithClaimsMapper(m ClaimsMapper) VerifierOption {
	return func(v *Verifier) { v.mapper = m }
}

// WithVerifierClock sets the time source used for claim checks
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a verifier trusting tokens from issuer whose keys are served by resolver
func NewVerifier(issuer string, resolver KeyResolver, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		issuer:   issuer,
		resolver: resolver,
		mapper:   NewPathClaimsMapper(DefaultRolesClaim),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{SigningAlgorithm}),
			jwt.WithoutClaimsValidation(),
		),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Issuer returns the trusted issuer
func (v *Verifier) Issuer() string {
	return v.issuer
}

// Verify decodes raw, resolves its signing key, verifies the RS256
// signature and the issuer and timing claims, and maps the payload into
// UserClaims.
func (v *Verifier) Verify(ctx context.Context, raw string) (*UserClaims, error) {
	decoded, err := decodeToken(raw)
	if err != nil {
		return nil, err
	}

	if decoded.Header.KeyID == "" {
		return nil, ErrMissingKeyID
	}

	key, err := v.resolver.Resolve(ctx, decoded.Header.KeyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyResolutionFailed, err)
	}
	if key.Algorithm != "" && key.Algorithm != SigningAlgorithm {
		return nil, fmt.Errorf("%w: key %q is published for %s", ErrKeyResolutionFailed, key.KeyID, key.Algorithm)
	}

	payload, err := v.verifySignature(raw, key)
	if err != nil {
		return nil, err
	}

	if err := v.validateClaims(payload); err != nil {
		return nil, err
	}

	return v.mapper.Map(payload)
}

// verifySignature returns the payload only if raw is signed by key with RS256
func (v *Verifier) verifySignature(raw string, key SigningKey) (jwt.MapClaims, error) {
	if key.PublicKey == nil {
		return nil, fmt.Errorf("%w: key %q has no public key", ErrKeyResolutionFailed, key.KeyID)
	}

	token, err := v.parser.ParseWithClaims(raw, jwt.MapClaims{}, func(*jwt.Token) (interface{}, error) {
		return key.PublicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	payload, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSignature
	}
	return payload, nil
}

// validateClaims checks issuer and timing. Bounds are inclusive of ClockSkew.
func (v *Verifier) validateClaims(payload jwt.MapClaims) error {
	now := v.now()

	iss, err := payload.GetIssuer()
	if err != nil || iss != v.issuer {
		return fmt.Errorf("%w: issuer %q is not trusted", ErrClaimValidationFailed, iss)
	}

	exp, err := payload.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClaimValidationFailed, err)
	}
	if exp == nil {
		return fmt.Errorf("%w: missing exp", ErrClaimValidationFailed)
	}
	if now.After(exp.Add(ClockSkew)) {
		return fmt.Errorf("%w: token expired at %s", ErrClaimValidationFailed, exp.UTC().Format(time.RFC3339))
	}

	iat, err := payload.GetIssuedAt()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClaimValidationFailed, err)
	}
	if iat != nil && now.Before(iat.Add(-ClockSkew)) {
		return fmt.Errorf("%w: token issued in the future", ErrClaimValidationFailed)
	}

	nbf, err := payload.GetNotBefore()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClaimValidationFailed, err)
	}
	if nbf != nil && now.Before(nbf.Add(-ClockSkew)) {
		return fmt.Errorf("%w: token not yet valid", ErrClaimValidationFailed)
	}

	return nil
}
