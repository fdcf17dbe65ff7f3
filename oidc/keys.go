package oidc

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"

	"github.com/upb/accreditation-api/services/ratelimit"
)

const (
	// DefaultCacheTTL is how long a fetched key set is served without refetching
	DefaultCacheTTL = 15 * time.Minute

	// DefaultFetchesPerMinute caps remote key set fetches in any rolling minute
	DefaultFetchesPerMinute = 10

	// DefaultFetchTimeout bounds a single key set fetch
	DefaultFetchTimeout = 5 * time.Second

	// WellKnownJWKSPath is appended to the issuer when no JWKS URL is configured
	WellKnownJWKSPath = "/protocol/openid-connect/certs"

	maxJWKSBodySize = 1 << 20
)

// SigningKey is a public key published by the identity provider
type SigningKey struct {
	KeyID     string
	PublicKey *rsa.PublicKey
	// Algorithm is the optional "alg" hint from the JWK
	Algorithm string
}

// KeyResolver resolves a key identifier to a signing key
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (SigningKey, error)
}

// ResolveJWKSURL returns explicit when set, otherwise the well-known
// certificate path under issuer.
func ResolveJWKSURL(issuer, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return strings.TrimRight(issuer, "/") + WellKnownJWKSPath
}

type keySnapshot struct {
	keys      map[string]SigningKey
	fetchedAt time.Time
}

// KeySetCache holds the most recently fetched key set.
// Readers see either the previous or the next set, never a mix.
type KeySetCache struct {
	current atomic.Pointer[keySnapshot]
}

// NewKeySetCache creates an empty cache
func NewKeySetCache() *KeySetCache {
	return &KeySetCache{}
}

// Lookup returns the key for kid if the cached set was fetched within ttl of now
func (c *KeySetCache) Lookup(kid string, now time.Time, ttl time.Duration) (SigningKey, bool) {
	snap := c.current.Load()
	if snap == nil || now.Sub(snap.fetchedAt) > ttl {
		return SigningKey{}, false
	}
	key, ok := snap.keys[kid]
	return key, ok
}

// Get returns the key for kid regardless of age
func (c *KeySetCache) Get(kid string) (SigningKey, bool) {
	snap := c.current.Load()
	if snap == nil {
		return SigningKey{}, false
	}
	key, ok := snap.keys[kid]
	return key, ok
}

// Replace swaps in keys as the whole cached set
func (c *KeySetCache) Replace(keys []SigningKey, fetchedAt time.Time) {
	m := make(map[string]SigningKey, len(keys))
	for _, k := range keys {
		m[k.KeyID] = k
	}
	c.current.Store(&keySnapshot{keys: m, fetchedAt: fetchedAt})
}

// Len returns the number of cached keys
func (c *KeySetCache) Len() int {
	snap := c.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.keys)
}

// FetchedAt returns when the cached set was fetched, zero if never
func (c *KeySetCache) FetchedAt() time.Time {
	snap := c.current.Load()
	if snap == nil {
		return time.Time{}
	}
	return snap.fetchedAt
}

// ResolverStats describes the resolver state for status endpoints
type ResolverStats struct {
	Endpoint  string    `json:"endpoint"`
	KeyCount  int       `json:"keyCount"`
	FetchedAt time.Time `json:"fetchedAt"`
	Fetches   int64     `json:"fetches"`
	Fresh     bool      `json:"fresh"`
}

// JWKSResolver resolves signing keys from a remote JWKS endpoint
type JWKSResolver struct {
	jwksURL      string
	httpClient   *http.Client
	cache        *KeySetCache
	cacheTTL     time.Duration
	limiter      ratelimit.Limiter
	fetchWindow  ratelimit.Window
	fallback     *ratelimit.SlidingWindow
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger

	fetches atomic.Int64
}

// ResolverOption configures a JWKSResolver
type ResolverOption func(*JWKSResolver)

// WithHTTPClient sets the client used for key set fetches
func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *JWKSResolver) { r.httpClient = c }
}

// WithCache shares an existing cache
func WithCache(c *KeySetCache) ResolverOption {
	return func(r *JWKSResolver) { r.cache = c }
}

// WithCacheTTL overrides DefaultCacheTTL
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *JWKSResolver) {
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

// WithFetchLimiter sets the limiter guarding remote fetches.
// While it errors, an in-process window of the same size takes over.
func WithFetchLimiter(l ratelimit.Limiter) ResolverOption {
	return func(r *JWKSResolver) { r.limiter = l }
}

// WithFetchWindow overrides the DefaultFetchesPerMinute budget
func WithFetchWindow(w ratelimit.Window) ResolverOption {
	return func(r *JWKSResolver) {
		if w.Limit > 0 && w.Length > 0 {
			r.fetchWindow = w
		}
	}
}

// WithFetchTimeout overrides DefaultFetchTimeout
func WithFetchTimeout(d time.Duration) ResolverOption {
	return func(r *JWKSResolver) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) ResolverOption {
	return func(r *JWKSResolver) { r.now = now }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ResolverOption {
	return func(r *JWKSResolver) { r.logger = l }
}

// NewJWKSResolver creates a resolver for the key set at jwksURL.
// Without WithFetchLimiter or WithFetchWindow it allows DefaultFetchesPerMinute
// fetches per rolling minute.
func NewJWKSResolver(jwksURL string, opts ...ResolverOption) *JWKSResolver {
	r := &JWKSResolver{
		jwksURL:      jwksURL,
		httpClient:   &http.Client{},
		cacheTTL:     DefaultCacheTTL,
		fetchWindow:  ratelimit.PerMinute(DefaultFetchesPerMinute),
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewKeySetCache()
	}
	r.fallback = ratelimit.NewSlidingWindow(r.fetchWindow)
	if r.limiter == nil {
		r.limiter = r.fallback
	}
	return r
}

// Endpoint returns the JWKS URL
func (r *JWKSResolver) Endpoint() string {
	return r.jwksURL
}

// Cache returns the underlying key cache
func (r *JWKSResolver) Cache() *KeySetCache {
	return r.cache
}

// Resolve returns the signing key for kid.
// A fresh cached key is returned without network access. Otherwise the whole
// key set is fetched, subject to the fetch limiter, and replaces the cache.
func (r *JWKSResolver) Resolve(ctx context.Context, kid string) (SigningKey, error) {
	if key, ok := r.cache.Lookup(kid, r.now(), r.cacheTTL); ok {
		return key, nil
	}

	if err := r.Refresh(ctx); err != nil {
		return SigningKey{}, err
	}

	key, ok := r.cache.Get(kid)
	if !ok {
		return SigningKey{}, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
	}
	return key, nil
}

// Refresh fetches the key set and replaces the cache
func (r *JWKSResolver) Refresh(ctx context.Context) error {
	key := "jwks:" + r.jwksURL
	allowed, err := r.limiter.Allow(ctx, key)
	if err != nil {
		r.logger.Warn("jwks fetch limiter unavailable, using local window",
			zap.String("jwks_url", r.jwksURL),
			zap.Error(err),
		)
		if allowed, err = r.fallback.Allow(ctx, key); err != nil {
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
	}
	if !allowed {
		return ErrRateLimited
	}

	keys, err := r.fetch(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeySourceUnavailable, err)
	}

	r.cache.Replace(keys, r.now())
	r.logger.Debug("jwks refreshed",
		zap.String("jwks_url", r.jwksURL),
		zap.Int("keys", len(keys)),
	)
	return nil
}

// Stats returns the current resolver state
func (r *JWKSResolver) Stats() ResolverStats {
	fetchedAt := r.cache.FetchedAt()
	return ResolverStats{
		Endpoint:  r.jwksURL,
		KeyCount:  r.cache.Len(),
		FetchedAt: fetchedAt,
		Fetches:   r.fetches.Load(),
		Fresh:     !fetchedAt.IsZero() && r.now().Sub(fetchedAt) <= r.cacheTTL,
	}
}

func (r *JWKSResolver) fetch(ctx context.Context) ([]SigningKey, error) {
	r.fetches.Add(1)

	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read jwks: %w", err)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jwks: %w", err)
	}

	keys := make([]SigningKey, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		sk, ok := signingKeyFromJWK(key)
		if !ok {
			r.logger.Debug("skipping jwk",
				zap.String("kid", key.KeyID()),
				zap.String("kty", key.KeyType().String()),
			)
			continue
		}
		keys = append(keys, sk)
	}
	return keys, nil
}

// signingKeyFromJWK keeps RSA signature keys that carry a kid
func signingKeyFromJWK(key jwk.Key) (SigningKey, bool) {
	if key.KeyID() == "" || key.KeyType() != jwa.RSA {
		return SigningKey{}, false
	}
	if use := key.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
		return SigningKey{}, false
	}

	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return SigningKey{}, false
	}
	pub, ok := raw.(*rsa.PublicKey)
	if !ok {
		return SigningKey{}, false
	}

	var alg string
	if a := key.Algorithm(); a != nil {
		alg = a.String()
	}
	return SigningKey{KeyID: key.KeyID(), PublicKey: pub, Algorithm: alg}, true
}
