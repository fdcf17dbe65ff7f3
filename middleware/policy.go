package middleware

import (
	"strings"
	"sync"
)

// AccessPolicy marks a route as public or protected
type AccessPolicy int

const (
	// PolicyUnset means no marking; resolution falls through to the enclosing group
	PolicyUnset AccessPolicy = iota
	// Public routes are admitted without credentials
	Public
	// Protected routes require a verified bearer token
	Protected
)

func (p AccessPolicy) String() string {
	switch p {
	case Public:
		return "public"
	case Protected:
		return "protected"
	default:
		return "unset"
	}
}

// AccessPolicies is a static table of route markings.
// Markings are declared before routes are registered and only read afterwards.
// A route marking beats any group marking, a longer group prefix beats a
// shorter one, and anything unmarked is Protected.
type AccessPolicies struct {
	mu     sync.RWMutex
	groups map[string]AccessPolicy
	routes map[string]AccessPolicy
}

// NewAccessPolicies creates an empty table
func NewAccessPolicies() *AccessPolicies {
	return &AccessPolicies{
		groups: make(map[string]AccessPolicy),
		routes: make(map[string]AccessPolicy),
	}
}

// MarkGroup marks every route under prefix
func (p *AccessPolicies) MarkGroup(prefix string, policy AccessPolicy) *AccessPolicies {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.groups[normalizePattern(prefix)] = policy
	return p
}

// MarkRoute marks a single handler. An empty method matches any method.
func (p *AccessPolicies) MarkRoute(method, pattern string, policy AccessPolicy) *AccessPolicies {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[routeKey(method, pattern)] = policy
	return p
}

// Resolve returns the effective policy for a route
func (p *AccessPolicies) Resolve(method, pattern string) AccessPolicy {
	if p == nil {
		return Protected
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, key := range []string{routeKey(method, pattern), routeKey("", pattern)} {
		if policy, ok := p.routes[key]; ok && policy != PolicyUnset {
			return policy
		}
	}

	pattern = normalizePattern(pattern)
	best, bestLen := PolicyUnset, -1
	for prefix, policy := range p.groups {
		if policy == PolicyUnset || !underPrefix(pattern, prefix) {
			continue
		}
		if len(prefix) > bestLen {
			best, bestLen = policy, len(prefix)
		}
	}
	if best != PolicyUnset {
		return best
	}
	return Protected
}

func routeKey(method, pattern string) string {
	return strings.ToUpper(method) + " " + normalizePattern(pattern)
}

func normalizePattern(pattern string) string {
	if pattern == "" || pattern == "/" {
		return "/"
	}
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}
	return strings.TrimRight(pattern, "/")
}

// underPrefix matches whole path segments only, so /health does not cover /healthz
func underPrefix(pattern, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return pattern == prefix || strings.HasPrefix(pattern, prefix+"/")
}
