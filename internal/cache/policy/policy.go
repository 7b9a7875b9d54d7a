// Package policy resolves a time-to-live for a cache entry from competing
// sources: an explicit per-call override, HTTP response header hints, and a
// cache-wide default. Resolution is a pure function; malformed inputs are
// ignored, never surfaced.
package policy

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Decision is the outcome of TTL resolution.
//
// NoStore means the value must not be cached at all. Otherwise, Expires
// reports whether the entry has a finite lifetime of TTL.
type Decision struct {
	NoStore bool
	Expires bool
	TTL     time.Duration
}

// ExpiresAt converts the decision into an absolute expiry. A zero return
// means the entry never expires.
func (d Decision) ExpiresAt(now time.Time) time.Time {
	if !d.Expires {
		return time.Time{}
	}
	return now.Add(d.TTL)
}

// Policy holds the configured default TTL. A zero defaultTTL means entries
// without any other hint never expire.
type Policy struct {
	defaultTTL time.Duration
}

func New(defaultTTL time.Duration) *Policy {
	return &Policy{defaultTTL: defaultTTL}
}

// Resolve picks a TTL, first match wins:
//
//  1. the explicit override (≤ 0 meaning "do not cache"),
//  2. Cache-Control no-cache/no-store ("do not cache"), then max-age,
//     then an Expires date relative to now (already past: "do not cache"),
//  3. the configured default,
//  4. otherwise no expiration.
func (p *Policy) Resolve(explicit *time.Duration, headers map[string]string) Decision {
	if explicit != nil {
		if *explicit <= 0 {
			return Decision{NoStore: true}
		}
		return Decision{Expires: true, TTL: *explicit}
	}

	if d, ok := fromHeaders(headers); ok {
		return d
	}

	if p.defaultTTL > 0 {
		return Decision{Expires: true, TTL: p.defaultTTL}
	}
	return Decision{}
}

// fromHeaders inspects response headers for cache directives. Header name
// matching is case-insensitive; unparseable values fall through.
func fromHeaders(headers map[string]string) (Decision, bool) {
	if len(headers) == 0 {
		return Decision{}, false
	}

	cacheControl := strings.ToLower(headerValue(headers, "Cache-Control"))
	if strings.Contains(cacheControl, "no-cache") || strings.Contains(cacheControl, "no-store") {
		return Decision{NoStore: true}, true
	}

	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if rest, found := strings.CutPrefix(directive, "max-age="); found {
			if secs, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil && secs >= 0 {
				if secs == 0 {
					return Decision{NoStore: true}, true
				}
				return Decision{Expires: true, TTL: time.Duration(secs) * time.Second}, true
			}
		}
	}

	if expires := headerValue(headers, "Expires"); expires != "" {
		if t, err := http.ParseTime(expires); err == nil {
			ttl := time.Until(t)
			if ttl <= 0 {
				return Decision{NoStore: true}, true
			}
			return Decision{Expires: true, TTL: ttl}, true
		}
	}

	return Decision{}, false
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
