package oidc

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRolesClaim is the Keycloak realm roles path
const DefaultRolesClaim = "realm_access.roles"

// UserClaims is the verified identity attached to a request
type UserClaims struct {
	UserID            string   `json:"userId"`
	Email             string   `json:"email"`
	EmailVerified     bool     `json:"emailVerified"`
	Name              *string  `json:"name,omitempty"`
	GivenName         *string  `json:"givenName,omitempty"`
	FamilyName        *string  `json:"familyName,omitempty"`
	PreferredUsername *string  `json:"preferredUsername,omitempty"`
	Roles             []string `json:"roles"`
	Issuer            string   `json:"iss"`
	Subject           string   `json:"sub"`
	IssuedAt          int64    `json:"iat"`
	ExpiresAt         int64    `json:"exp"`
}

// HasRole reports whether the user holds role
func (c *UserClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ClaimsMapper turns a verified payload into UserClaims.
// Implementations only ever receive payloads whose signature and
// standard claims have already been checked.
type ClaimsMapper interface {
	Map(payload jwt.MapClaims) (*UserClaims, error)
}

// PathClaimsMapper reads standard OIDC claims and takes roles from a
// dot-separated path into the payload, e.g. "realm_access.roles".
type PathClaimsMapper struct {
	rolesPath []string
}

// NewPathClaimsMapper creates a mapper reading roles from rolesPath.
// An empty path uses DefaultRolesClaim.
func NewPathClaimsMapper(rolesPath string) *PathClaimsMapper {
	if rolesPath == "" {
		rolesPath = DefaultRolesClaim
	}
	return &PathClaimsMapper{rolesPath: strings.Split(rolesPath, ".")}
}

// Map implements ClaimsMapper
func (m *PathClaimsMapper) Map(payload jwt.MapClaims) (*UserClaims, error) {
	sub, err := payload.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrClaimValidationFailed)
	}
	iss, _ := payload.GetIssuer()

	claims := &UserClaims{
		UserID:            sub,
		Subject:           sub,
		Issuer:            iss,
		Email:             stringClaim(payload, "email"),
		EmailVerified:     boolClaim(payload, "email_verified"),
		Name:              optionalString(payload, "name"),
		GivenName:         optionalString(payload, "given_name"),
		FamilyName:        optionalString(payload, "family_name"),
		PreferredUsername: optionalString(payload, "preferred_username"),
		Roles:             stringSlice(lookupPath(payload, m.rolesPath)),
	}

	if iat, err := payload.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Unix()
	}
	if exp, err := payload.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Unix()
	}

	return claims, nil
}

func lookupPath(payload map[string]interface{}, path []string) interface{} {
	var cur interface{} = payload
	for _, segment := range path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = obj[segment]
		if !ok {
			return nil
		}
	}
	return cur
}

// stringSlice keeps string entries in order and never returns nil
func stringSlice(v interface{}) []string {
	out := []string{}
	switch vals := v.(type) {
	case []interface{}:
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, vals...)
	case string:
		if vals != "" {
			out = append(out, vals)
		}
	}
	return out
}

func stringClaim(payload jwt.MapClaims, name string) string {
	s, _ := payload[name].(string)
	return s
}

func optionalString(payload jwt.MapClaims, name string) *string {
	s, ok := payload[name].(string)
	if !ok {
		return nil
	}
	return &s
}

// boolClaim accepts JSON booleans and the strings "true"/"false"
func boolClaim(payload jwt.MapClaims, name string) bool {
	switch v := payload[name].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}
