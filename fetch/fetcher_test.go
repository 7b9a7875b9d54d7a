package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"goflare.io/cinder"
)

const validDoc = `{"@context":"https://example.com/ctx","type":"Venue","id":"venue-1","name":"Test"}`

func newTestFetcher(t *testing.T, opts ...Option) *Fetcher {
	t.Helper()
	f, err := NewFetcher(append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	require.NoError(t, err)
	return f
}

func newTestCache(t *testing.T) *cinder.Cache {
	t.Helper()
	c, err := cinder.New(cinder.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	return c
}

func TestFetchURLUsesCache(t *testing.T) {
	requests := atomic.NewInt64(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Inc()
		w.Header().Set("Cache-Control", "max-age=300")
		_, _ = w.Write([]byte(validDoc))
	}))
	defer srv.Close()

	f := newTestFetcher(t, WithCache(newTestCache(t)))
	ctx := context.Background()

	doc, err := f.FetchURL(ctx, srv.URL)
	require.NoError(t, err)
	require.Equal(t, "venue-1", doc["id"])

	_, err = f.FetchURL(ctx, srv.URL)
	require.NoError(t, err)
	require.Equal(t, int64(1), requests.Load(), "second fetch must be served from cache")
}

func TestFetchURLHonorsNoStore(t *testing.T) {
	requests := atomic.NewInt64(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Inc()
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(validDoc))
	}))
	defer srv.Close()

	f := newTestFetcher(t, WithCache(newTestCache(t)))
	ctx := context.Background()

	_, err := f.FetchURL(ctx, srv.URL)
	require.NoError(t, err)
	_, err = f.FetchURL(ctx, srv.URL)
	require.NoError(t, err)
	require.Equal(t, int64(2), requests.Load(), "no-store responses must not be cached")
}

func TestFetchURLRetriesServerErrors(t *testing.T) {
	requests := atomic.NewInt64(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Inc() < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(validDoc))
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	doc, err := f.FetchURL(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "venue-1", doc["id"])
	require.Equal(t, int64(3), requests.Load())
}

func TestFetchURLDoesNotRetryClientErrors(t *testing.T) {
	requests := atomic.NewInt64(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Inc()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	_, err := f.FetchURL(context.Background(), srv.URL)
	require.Error(t, err)
	require.Equal(t, int64(1), requests.Load(), "4xx responses are not temporary")
}

func TestFetchURLValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name":"missing required fields"}`))
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	_, err := f.FetchURL(context.Background(), srv.URL)
	require.ErrorContains(t, err, "missing required fields")

	relaxed := newTestFetcher(t, WithoutValidation())
	doc, err := relaxed.FetchURL(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "missing required fields", doc["name"])
}

func TestFetchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o644))

	f := newTestFetcher(t)
	doc, err := f.FetchFile(path)
	require.NoError(t, err)
	require.Equal(t, "venue-1", doc["id"])

	_, err = f.FetchFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestFetchDispatchesOnScheme(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(validDoc))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o644))

	f := newTestFetcher(t)
	ctx := context.Background()

	fromURL, err := f.Fetch(ctx, srv.URL)
	require.NoError(t, err)
	fromFile, err := f.Fetch(ctx, path)
	require.NoError(t, err)
	require.Equal(t, fromURL["id"], fromFile["id"])
}

func TestFetchAllRecordsFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o644))

	f := newTestFetcher(t)
	docs := f.FetchAll(context.Background(), []string{path, "/does/not/exist.json"})

	require.Len(t, docs, 1)
	failed := f.FailedSources()
	require.Len(t, failed, 1)
	require.Equal(t, "/does/not/exist.json", failed[0].Source)
}

func TestPrefetchWarmsCache(t *testing.T) {
	requests := atomic.NewInt64(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Inc()
		w.Header().Set("Cache-Control", "max-age=300")
		_, _ = w.Write([]byte(validDoc))
	}))
	defer srv.Close()

	cache := newTestCache(t)
	f := newTestFetcher(t, WithCache(cache))
	ctx := context.Background()

	results := f.Prefetch(ctx, []string{srv.URL})
	require.NoError(t, results[srv.URL])

	_, ok := cache.Get(ctx, srv.URL)
	require.True(t, ok, "prefetched document should be cached")
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".hidden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.json"), []byte(validDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "deep.json"), []byte(validDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden", "skip.json"), []byte(validDoc), 0o644))

	flat, err := Discover(dir, false)
	require.NoError(t, err)
	require.Len(t, flat, 1)

	recursive, err := Discover(dir, true)
	require.NoError(t, err)
	require.Len(t, recursive, 2)
}

func TestFetchDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.json"), []byte(validDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{broken"), 0o644))

	f := newTestFetcher(t)
	docs, err := f.FetchDirectory(dir, false)
	require.NoError(t, err)
	require.Len(t, docs, 1, "unparseable documents are skipped, not fatal")
}
