package classify

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Strategy selects how the worker answers an intercepted request.
type Strategy int

const (
	// Bypass passes the request straight to the network, uncached. Used for
	// authenticated backend calls that embed an apikey secret in the URL;
	// those must never be written to a shared cache.
	Bypass Strategy = iota
	// CacheFirstVersioned serves content-fingerprinted assets from cache
	// forever; the URL changes when the content does.
	CacheFirstVersioned
	// NetworkFirst prefers a live answer and falls back to cache offline.
	NetworkFirst
	// StaleWhileRevalidate serves cache immediately and refreshes behind it.
	StaleWhileRevalidate
	// Default tries the network and falls back to whatever the cache holds.
	Default
)

func (s Strategy) String() string {
	switch s {
	case Bypass:
		return "bypass"
	case CacheFirstVersioned:
		return "cache-first-versioned"
	case NetworkFirst:
		return "network-first"
	case StaleWhileRevalidate:
		return "stale-while-revalidate"
	default:
		return "default"
	}
}

// Rules is the strategy table: which prefixes count as API traffic, which
// hosts belong to the backend platform, and which extensions mark cacheable
// static assets. The same table feeds the generated worker script.
type Rules struct {
	APIPrefixes      []string
	BackendHosts     []string
	StaticExtensions []string
}

type Decision struct {
	Strategy Strategy
	Reason   string
}

// Classify maps a request to its caching strategy, first match wins.
func Classify(r *http.Request, rules Rules) Decision {
	query := r.URL.Query()

	if query.Has("apikey") {
		return Decision{Strategy: Bypass, Reason: "apikey"}
	}
	if IsVersionedURL(r.URL) {
		return Decision{Strategy: CacheFirstVersioned, Reason: "versioned"}
	}
	if isAPIRequest(r.URL, rules) {
		return Decision{Strategy: NetworkFirst, Reason: "api"}
	}
	if isStaticAsset(r.URL.Path, rules.StaticExtensions) {
		return Decision{Strategy: StaleWhileRevalidate, Reason: "static-asset"}
	}
	if IsNavigation(r) {
		return Decision{Strategy: NetworkFirst, Reason: "navigation"}
	}
	return Decision{Strategy: Default, Reason: "fallthrough"}
}

// IsVersionedURL reports whether u carries both the v= and t= markers that
// make its content immutable for the lifetime of the URL.
func IsVersionedURL(u *url.URL) bool {
	query := u.Query()
	return query.Has("v") && query.Has("t")
}

// IsVersionedKey is IsVersionedURL for a raw cache key.
func IsVersionedKey(key string) bool {
	u, err := url.Parse(key)
	if err != nil {
		return false
	}
	return IsVersionedURL(u)
}

func isAPIRequest(u *url.URL, rules Rules) bool {
	for _, prefix := range rules.APIPrefixes {
		if strings.HasPrefix(u.Path, prefix) {
			return true
		}
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	for _, backend := range rules.BackendHosts {
		if matchHost(host, backend) {
			return true
		}
	}
	return false
}

// matchHost matches an exact hostname or, for a pattern like ".example.com",
// any subdomain of it.
func matchHost(host, pattern string) bool {
	if strings.HasPrefix(pattern, ".") {
		return strings.HasSuffix(host, pattern) || host == strings.TrimPrefix(pattern, ".")
	}
	return host == pattern
}

func isStaticAsset(urlPath string, extensions []string) bool {
	ext := strings.ToLower(path.Ext(urlPath))
	if ext == "" {
		return false
	}
	for _, known := range extensions {
		if ext == known {
			return true
		}
	}
	return false
}
