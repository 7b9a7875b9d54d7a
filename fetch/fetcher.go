// Package fetch retrieves JSON documents from URLs or local files, backed by
// a shared cinder cache. Network fetches are deduplicated per source, retried
// with backoff on temporary failures, and guarded by a circuit breaker.
//
// Unlike the cache itself, the fetcher does surface errors: a failed fetch is
// the caller's problem, a failed cache write never is.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"goflare.io/cinder"
	"goflare.io/cinder/internal/retrier"
)

// Document is a decoded JSON document. The fetcher checks only the basic
// required fields; everything else is opaque.
type Document = map[string]any

// requiredFields are the minimal keys a well-formed document must carry.
var requiredFields = []string{"@context", "type", "id"}

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultUserAgent  = "cinder-sdk-go/0.1.0"
)

// FailedSource records a source that could not be fetched during a batch.
type FailedSource struct {
	Source string
	Err    string
}

// Option configures a Fetcher.
type Option func(*Fetcher) error

// WithCache shares a cache with the fetcher. Without one the fetcher always
// goes to the source.
func WithCache(cache *cinder.Cache) Option {
	return func(f *Fetcher) error {
		f.cache = cache
		return nil
	}
}

// WithTimeout bounds each HTTP request.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) error {
		f.client.Timeout = timeout
		return nil
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) error {
		f.client = client
		return nil
	}
}

// WithMaxRetries sets the retry budget for temporary fetch failures.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) error {
		r, err := retrier.NewRetrier(n, 100*time.Millisecond, time.Second, 2, 0.1, retrier.ExponentialBackoff, nil)
		if err != nil {
			return err
		}
		f.retry = r
		return nil
	}
}

// WithUserAgent sets the User-Agent header on outgoing requests.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) error {
		f.userAgent = ua
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) error {
		f.logger = logger
		return nil
	}
}

// WithoutValidation disables the basic structure check on fetched documents.
func WithoutValidation() Option {
	return func(f *Fetcher) error {
		f.validate = false
		return nil
	}
}

// Fetcher fetches documents from URLs and files.
type Fetcher struct {
	client    *http.Client
	cache     *cinder.Cache
	retry     *retrier.Retrier
	breaker   *gobreaker.CircuitBreaker
	sf        singleflight.Group
	logger    *zap.Logger
	tracer    trace.Tracer
	userAgent string
	validate  bool

	mu     sync.Mutex
	failed []FailedSource
}

// NewFetcher builds a Fetcher with sane defaults: 30s timeout, 3 attempts
// with exponential backoff, validation on, no cache.
func NewFetcher(opts ...Option) (*Fetcher, error) {
	r, err := retrier.NewRetrier(defaultMaxRetries, 100*time.Millisecond, time.Second, 2, 0.1, retrier.ExponentialBackoff, nil)
	if err != nil {
		return nil, err
	}

	f := &Fetcher{
		client:    &http.Client{Timeout: defaultTimeout},
		retry:     r,
		tracer:    otel.Tracer("cinder/fetch"),
		userAgent: defaultUserAgent,
		validate:  true,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "FetcherCircuitBreaker",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
	}

	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if f.logger == nil {
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize default logger: %w", err)
		}
		f.logger = logger
	}

	return f, nil
}

// Fetch retrieves a document from a URL or a local file path.
func (f *Fetcher) Fetch(ctx context.Context, source string) (Document, error) {
	if isURL(source) {
		return f.FetchURL(ctx, source)
	}
	return f.FetchFile(source)
}

// FetchURL retrieves a document over HTTP, consulting the shared cache
// first. Concurrent fetches of the same URL collapse into one request, and
// the response headers are handed to the cache for TTL inference.
func (f *Fetcher) FetchURL(ctx context.Context, url string) (Document, error) {
	ctx, span := f.tracer.Start(ctx, "Fetcher.FetchURL", trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	if f.cache != nil {
		if value, ok := f.cache.Get(ctx, url); ok {
			if doc, ok := asDocument(value); ok {
				if !f.validate || validateBasic(doc) == nil {
					f.logger.Debug("cache hit for URL", zap.String("url", url))
					return doc, nil
				}
				f.logger.Warn("cached document failed validation, refetching", zap.String("url", url))
			}
		}
	}

	v, err, _ := f.sf.Do(url, func() (any, error) {
		return f.fetchRemote(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return v.(Document), nil
}

// FetchFile loads a document from a local JSON file. File loads are not
// cached; the filesystem is already local.
func (f *Fetcher) FetchFile(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load document from %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document from %s: %w", path, err)
	}

	if f.validate {
		if err := validateBasic(doc); err != nil {
			return nil, fmt.Errorf("invalid document in %s: %w", path, err)
		}
	}

	f.logger.Info("loaded document from file", zap.String("path", path))
	return doc, nil
}

// FetchAll fetches every source, continuing past failures. Failed sources
// are recorded and retrievable via FailedSources.
func (f *Fetcher) FetchAll(ctx context.Context, sources []string) []Document {
	f.mu.Lock()
	f.failed = nil
	f.mu.Unlock()

	var docs []Document
	for _, source := range sources {
		doc, err := f.Fetch(ctx, source)
		if err != nil {
			f.logger.Error("failed to fetch document", zap.String("source", source), zap.Error(err))
			f.recordFailure(source, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

// Prefetch warms the cache for the given URLs and reports the outcome per
// URL (nil means fetched or already cached).
func (f *Fetcher) Prefetch(ctx context.Context, urls []string) map[string]error {
	results := make(map[string]error, len(urls))
	for _, url := range urls {
		_, err := f.FetchURL(ctx, url)
		results[url] = err
	}
	return results
}

// FailedSources returns the failures recorded by the last FetchAll.
func (f *Fetcher) FailedSources() []FailedSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FailedSource(nil), f.failed...)
}

func (f *Fetcher) recordFailure(source string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, FailedSource{Source: source, Err: err.Error()})
}

// fetchRemote performs the guarded HTTP fetch and stores the result in the
// shared cache with the transport's headers.
func (f *Fetcher) fetchRemote(ctx context.Context, url string) (Document, error) {
	var (
		doc     Document
		headers map[string]string
	)

	err := f.retry.Run(ctx, func() error {
		_, err := f.breaker.Execute(func() (any, error) {
			var getErr error
			doc, headers, getErr = f.httpGet(ctx, url)
			return nil, getErr
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document from %s: %w", url, err)
	}

	if f.validate {
		if err := validateBasic(doc); err != nil {
			return nil, fmt.Errorf("invalid document from %s: %w", url, err)
		}
	}

	if f.cache != nil {
		f.cache.Set(ctx, url, doc, cinder.WithHeaders(headers))
	}

	f.logger.Info("fetched document", zap.String("url", url))
	return doc, nil
}

func (f *Fetcher) httpGet(ctx context.Context, url string) (Document, map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, &transientError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, nil, &statusError{url: url, status: resp.StatusCode}
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse response from %s: %w", url, err)
	}

	headers := make(map[string]string, len(resp.Header))
	for name := range resp.Header {
		headers[name] = resp.Header.Get(name)
	}
	return doc, headers, nil
}

// statusError marks HTTP error responses; 5xx and 429 are retryable.
type statusError struct {
	url    string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.status, e.url)
}

func (e *statusError) Temporary() bool {
	return e.status >= 500 || e.status == http.StatusTooManyRequests
}

// transientError marks transport-level failures as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string   { return e.err.Error() }
func (e *transientError) Unwrap() error   { return e.err }
func (e *transientError) Temporary() bool { return true }

func validateBasic(doc Document) error {
	var missing []string
	for _, field := range requiredFields {
		if _, ok := doc[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("document missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func asDocument(v any) (Document, bool) {
	doc, ok := v.(map[string]any)
	return doc, ok
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
