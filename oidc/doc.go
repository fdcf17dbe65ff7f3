// Package oidc verifies bearer tokens issued by an external OpenID Connect
// provider.
//
// Verification has two phases. A token is first decoded without trusting
// it, only to read the key identifier from its header. The signing key is
// then resolved from the provider's published key set (JWKS) and the token
// is verified with RS256 before any claim is read. Only a fully verified
// token is mapped into UserClaims.
//
// The key set is fetched as a whole, cached for a fixed TTL and replaced
// atomically on refresh. Remote fetches are rate limited.
package oidc
