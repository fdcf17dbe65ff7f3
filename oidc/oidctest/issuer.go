// Package oidctest provides a fake identity provider for tests.
//
// The Issuer runs an httptest server publishing its keys at the well-known
// certificate path and signs RS256 tokens that verify against them.
//
//	iss := oidctest.NewIssuer(t)
//	resolver := oidc.NewJWKSResolver(iss.JWKSURL())
//	token := iss.Sign(t, iss.Claims("user-123", "admin"))
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"
)

// DefaultKeyID is the kid of the key every Issuer starts with
const DefaultKeyID = "test-key-1"

// Issuer is a fake OIDC provider
type Issuer struct {
	server *httptest.Server

	mu        sync.Mutex
	keys      map[string]*rsa.PrivateKey
	order     []string
	activeKID string

	fetches     atomic.Int64
	unavailable atomic.Bool
}

// NewIssuer starts an issuer with one published key. The server is closed on test cleanup.
func NewIssuer(t testing.TB) *Issuer {
	t.Helper()

	iss := &Issuer{keys: make(map[string]*rsa.PrivateKey)}
	iss.AddKey(t, DefaultKeyID)

	mux := http.NewServeMux()
	mux.HandleFunc("/protocol/openid-connect/certs", iss.handleJWKS)
	iss.server = httptest.NewServer(mux)
	t.Cleanup(iss.server.Close)

	return iss
}

// URL is the issuer identifier placed in the iss claim
func (i *Issuer) URL() string {
	return i.server.URL
}

// JWKSURL is where the key set is served
func (i *Issuer) JWKSURL() string {
	return i.server.URL + "/protocol/openid-connect/certs"
}

// Fetches returns how many times the key set was requested
func (i *Issuer) Fetches() int64 {
	return i.fetches.Load()
}

// SetUnavailable makes the key endpoint answer 503
func (i *Issuer) SetUnavailable(down bool) {
	i.unavailable.Store(down)
}

// AddKey generates and publishes a key and makes it the signing key
func (i *Issuer) AddKey(t testing.TB, kid string) *rsa.PrivateKey {
	t.Helper()
	key := GenerateKey(t)

	i.mu.Lock()
	defer i.mu.Unlock()
	if _, exists := i.keys[kid]; !exists {
		i.order = append(i.order, kid)
	}
	i.keys[kid] = key
	i.activeKID = kid
	return key
}

// RemoveKey stops publishing kid
func (i *Issuer) RemoveKey(kid string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.keys, kid)
	for n, k := range i.order {
		if k == kid {
			i.order = append(i.order[:n], i.order[n+1:]...)
			break
		}
	}
}

// Claims returns a valid payload for sub issued now and expiring in an hour.
// Roles are placed under realm_access.roles.
func (i *Issuer) Claims(sub string, roles ...string) jwt.MapClaims {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":            sub,
		"iss":            i.URL(),
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
		"email":          sub + "@example.com",
		"email_verified": true,
	}
	if roles != nil {
		claims["realm_access"] = map[string]interface{}{"roles": roles}
	}
	return claims
}

// Sign signs claims with the active key
func (i *Issuer) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	i.mu.Lock()
	kid := i.activeKID
	i.mu.Unlock()
	return i.SignWithKID(t, kid, claims)
}

// SignWithKID signs claims with the published key kid
func (i *Issuer) SignWithKID(t testing.TB, kid string, claims jwt.MapClaims) string {
	t.Helper()
	i.mu.Lock()
	key, ok := i.keys[kid]
	i.mu.Unlock()
	require.True(t, ok, "kid %q is not published", kid)
	return SignWith(t, key, kid, claims)
}

// SignWith signs claims with any RSA key, published or not.
// An empty kid omits the header.
func SignWith(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

// GenerateKey returns a fresh 2048-bit RSA key
func GenerateKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// KeySet builds a JWKS document holding the public halves of keys
func KeySet(keys map[string]*rsa.PrivateKey, order []string) (jwk.Set, error) {
	set := jwk.NewSet()
	for _, kid := range order {
		priv, ok := keys[kid]
		if !ok {
			continue
		}
		pub, err := jwk.FromRaw(&priv.PublicKey)
		if err != nil {
			return nil, err
		}
		if err := pub.Set(jwk.KeyIDKey, kid); err != nil {
			return nil, err
		}
		if err := pub.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
			return nil, err
		}
		if err := pub.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
			return nil, err
		}
		if err := set.AddKey(pub); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (i *Issuer) handleJWKS(w http.ResponseWriter, r *http.Request) {
	i.fetches.Add(1)

	if i.unavailable.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	i.mu.Lock()
	set, err := KeySet(i.keys, i.order)
	i.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}
