package policy

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ttl(d time.Duration) *time.Duration {
	return &d
}

func TestResolveExplicitTTL(t *testing.T) {
	p := New(0)

	d := p.Resolve(ttl(30*time.Second), nil)
	require.False(t, d.NoStore)
	require.True(t, d.Expires)
	require.Equal(t, 30*time.Second, d.TTL)
}

func TestResolveExplicitZeroMeansNoStore(t *testing.T) {
	p := New(time.Hour)

	d := p.Resolve(ttl(0), map[string]string{"Cache-Control": "max-age=300"})
	require.True(t, d.NoStore)
}

func TestResolveExplicitWinsOverHeaders(t *testing.T) {
	p := New(0)

	d := p.Resolve(ttl(5*time.Second), map[string]string{"Cache-Control": "no-store"})
	require.False(t, d.NoStore)
	require.Equal(t, 5*time.Second, d.TTL)
}

func TestResolveNoCacheDirectives(t *testing.T) {
	p := New(time.Hour)

	for _, value := range []string{"no-cache", "no-store", "private, no-cache, must-revalidate"} {
		d := p.Resolve(nil, map[string]string{"Cache-Control": value})
		require.True(t, d.NoStore, "directive %q should disable caching", value)
	}
}

func TestResolveMaxAge(t *testing.T) {
	p := New(time.Hour)

	d := p.Resolve(nil, map[string]string{"Cache-Control": "public, max-age=120"})
	require.False(t, d.NoStore)
	require.True(t, d.Expires)
	require.Equal(t, 2*time.Minute, d.TTL)
}

func TestResolveMaxAgeZeroMeansNoStore(t *testing.T) {
	p := New(time.Hour)

	d := p.Resolve(nil, map[string]string{"Cache-Control": "max-age=0"})
	require.True(t, d.NoStore)
}

func TestResolveHeaderNameCaseInsensitive(t *testing.T) {
	p := New(0)

	d := p.Resolve(nil, map[string]string{"cache-control": "MAX-AGE=60"})
	require.True(t, d.Expires)
	require.Equal(t, time.Minute, d.TTL)
}

func TestResolveExpiresHeader(t *testing.T) {
	p := New(0)

	future := time.Now().Add(10 * time.Minute).UTC().Format(http.TimeFormat)
	d := p.Resolve(nil, map[string]string{"Expires": future})
	require.False(t, d.NoStore)
	require.True(t, d.Expires)
	require.InDelta(t, (10 * time.Minute).Seconds(), d.TTL.Seconds(), 65)
}

func TestResolveExpiresInPastMeansNoStore(t *testing.T) {
	p := New(0)

	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	d := p.Resolve(nil, map[string]string{"Expires": past})
	require.True(t, d.NoStore)
}

func TestResolveMalformedHeadersFallThrough(t *testing.T) {
	p := New(time.Minute)

	d := p.Resolve(nil, map[string]string{
		"Cache-Control": "max-age=soon",
		"Expires":       "not a date",
	})
	require.False(t, d.NoStore)
	require.True(t, d.Expires)
	require.Equal(t, time.Minute, d.TTL, "should fall back to the default TTL")
}

func TestResolveDefaultTTL(t *testing.T) {
	p := New(45 * time.Second)

	d := p.Resolve(nil, nil)
	require.True(t, d.Expires)
	require.Equal(t, 45*time.Second, d.TTL)
}

func TestResolveNoExpiration(t *testing.T) {
	p := New(0)

	d := p.Resolve(nil, nil)
	require.False(t, d.NoStore)
	require.False(t, d.Expires)
	require.True(t, d.ExpiresAt(time.Now()).IsZero())
}

func TestDecisionExpiresAt(t *testing.T) {
	now := time.Now()
	d := Decision{Expires: true, TTL: time.Minute}
	require.Equal(t, now.Add(time.Minute), d.ExpiresAt(now))
}
