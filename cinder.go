// Package cinder is a two-tier (memory + disk) cache for small JSON-like
// documents, built to spare a client library redundant remote fetches.
//
// Lookups consult the memory tier first and fall back to the disk tier,
// promoting disk hits into memory when capacity allows. Writes resolve a
// time-to-live from an explicit override, HTTP response header hints, or the
// configured default, in that order. Expired and corrupt entries are removed
// cooperatively: every Get/Set checks whether a cleanup interval has elapsed
// and sweeps both tiers when it has — there is no background goroutine.
//
// The cache is strictly a performance accelerator. After construction no
// failure inside it reaches the caller: a Get conservatively reports a miss
// and a Set silently degrades to memory-only, with counters recording what
// went wrong.
package cinder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"goflare.io/cinder/internal/cache/disk"
	"goflare.io/cinder/internal/cache/memory"
	"goflare.io/cinder/internal/cache/policy"
	"goflare.io/cinder/internal/config"
	"goflare.io/cinder/internal/models"
	"goflare.io/cinder/pkg/serialization"
)

// Option configures the cache at construction time.
type Option func(*config.Config) error

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *config.Config) error {
		cfg.Logger = logger
		return nil
	}
}

// WithCacheDir enables the disk tier, persisting entries under dir.
func WithCacheDir(dir string) Option {
	return func(cfg *config.Config) error {
		cfg.CacheDir = dir
		return nil
	}
}

// WithDefaultTTL sets the expiration applied when a Set carries neither an
// explicit TTL nor usable header hints. Zero means no default expiration.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(cfg *config.Config) error {
		cfg.DefaultTTL = ttl
		return nil
	}
}

// WithMaxMemoryEntries bounds the memory tier.
func WithMaxMemoryEntries(n int) Option {
	return func(cfg *config.Config) error {
		cfg.MaxMemoryEntries = n
		return nil
	}
}

// WithMaxDiskBytes bounds the disk tier's total size. Enforcement is
// best-effort and runs after each write.
func WithMaxDiskBytes(n int64) Option {
	return func(cfg *config.Config) error {
		cfg.MaxDiskBytes = n
		return nil
	}
}

// WithCleanupInterval sets how much time must elapse between cooperative
// sweeps of expired entries.
func WithCleanupInterval(interval time.Duration) Option {
	return func(cfg *config.Config) error {
		cfg.CleanupInterval = interval
		return nil
	}
}

// WithSerialization selects the codec used for disk persistence: "json"
// (default) or "gob".
func WithSerialization(serializer string) Option {
	return func(cfg *config.Config) error {
		switch serializer {
		case serialization.JSONType:
			cfg.Serialization.Type = serialization.JSONType
			cfg.Serialization.Encoder = serialization.JsonEncoder
			cfg.Serialization.Decoder = serialization.JsonDecoder
		case serialization.GobType:
			cfg.Serialization.Type = serialization.GobType
			cfg.Serialization.Encoder = serialization.GobEncoder
			cfg.Serialization.Decoder = serialization.GobDecoder
		default:
			return fmt.Errorf("%w: %s", ErrUnsupportedSerialization, serializer)
		}
		return nil
	}
}

// setOptions carries the per-call inputs to TTL resolution.
type setOptions struct {
	explicitTTL *time.Duration
	headers     map[string]string
}

// SetOption configures a single Set call.
type SetOption func(*setOptions)

// WithTTL overrides every other TTL source for this entry. A TTL ≤ 0 means
// "do not cache": the value is not stored anywhere.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.explicitTTL = &ttl
	}
}

// WithHeaders supplies response headers, exactly as the transport returned
// them, for Cache-Control/Expires based TTL inference.
func WithHeaders(headers map[string]string) SetOption {
	return func(o *setOptions) {
		o.headers = headers
	}
}

// Cache is the facade over both tiers. It is safe for concurrent use.
type Cache struct {
	memory  *memory.Store
	disk    *disk.Store // nil when running memory-only
	policy  *policy.Policy
	metrics *models.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer

	cleanupInterval time.Duration
	cleanupMu       sync.Mutex
	lastCleanup     time.Time
}

// Stats is a point-in-time snapshot of cache statistics.
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
	MemoryHits    int64   `json:"memory_hits"`
	DiskHits      int64   `json:"disk_hits"`
	MemoryEntries int     `json:"memory_entries"`
	DiskSizeBytes int64   `json:"disk_size_bytes"`
	Evictions     int64   `json:"evictions"`
	Errors        int64   `json:"errors"`
}

// New builds a Cache. An unusable disk directory is not fatal: the cache
// logs a warning and degrades to memory-only.
func New(opts ...Option) (*Cache, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Logger == nil {
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize default logger: %w", err)
		}
		cfg.Logger = logger
	}

	c := &Cache{
		memory:          memory.NewStore(cfg.MaxMemoryEntries, cfg.Logger),
		policy:          policy.New(cfg.DefaultTTL),
		metrics:         models.NewMetrics(),
		logger:          cfg.Logger,
		tracer:          otel.Tracer("cinder"),
		cleanupInterval: cfg.CleanupInterval,
		lastCleanup:     time.Now(),
	}

	if cfg.CacheDir != "" {
		ds, err := disk.NewStore(
			cfg.CacheDir,
			cfg.MaxDiskBytes,
			cfg.Serialization.Encoder,
			cfg.Serialization.Decoder,
			cfg.Logger,
		)
		if err != nil {
			cfg.Logger.Warn("disk cache unavailable, running memory-only",
				zap.String("dir", cfg.CacheDir), zap.Error(err))
		} else {
			c.disk = ds
			cfg.Logger.Info("disk cache enabled", zap.String("dir", cfg.CacheDir))
		}
	}

	return c, nil
}

// Get returns the cached value for key, checking memory first and then
// disk. A disk hit is promoted into the memory tier when it has spare
// capacity; promotion never evicts a memory-resident entry.
func (c *Cache) Get(ctx context.Context, key string) (any, bool) {
	_, span := c.tracer.Start(ctx, "Cache.Get", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	c.maybeCleanup()

	if entry, ok := c.memory.Get(key); ok {
		c.metrics.Hits.Inc()
		c.metrics.MemoryHits.Inc()
		c.logger.Debug("cache hit (memory)", zap.String("key", key))
		return entry.Data, true
	}

	if c.disk != nil {
		entry, err := c.disk.Read(key)
		switch {
		case err == nil:
			c.memory.PutIfVacant(key, entry)
			c.metrics.Hits.Inc()
			c.metrics.DiskHits.Inc()
			c.logger.Debug("cache hit (disk)", zap.String("key", key))
			return entry.Data, true
		case !errors.Is(err, models.ErrKeyNotFound):
			// Corrupt or unreadable persisted entry: treated as a miss.
			c.metrics.Errors.Inc()
		}
	}

	c.metrics.Misses.Inc()
	c.logger.Debug("cache miss", zap.String("key", key))
	return nil, false
}

// Set stores value under key in the memory tier and, when configured, the
// disk tier. When TTL resolution yields "do not cache" nothing is stored.
// Set never fails from the caller's point of view: disk trouble is counted
// and logged, and the in-memory copy stays valid.
func (c *Cache) Set(ctx context.Context, key string, value any, opts ...SetOption) {
	_, span := c.tracer.Start(ctx, "Cache.Set", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	c.maybeCleanup()

	var so setOptions
	for _, opt := range opts {
		opt(&so)
	}

	decision := c.policy.Resolve(so.explicitTTL, so.headers)
	if decision.NoStore {
		c.logger.Debug("skipping cache due to no-store directive", zap.String("key", key))
		return
	}

	entry := models.NewEntry(value, decision.ExpiresAt(time.Now()))
	// The memory tier mutates access metadata after publication, so the
	// disk tier must work from a copy taken before Put.
	snapshot := *entry
	if evicted := c.memory.Put(key, entry); evicted {
		c.metrics.Evictions.Inc()
	}

	if c.disk != nil {
		if err := c.disk.Write(key, &snapshot); err != nil {
			c.metrics.Errors.Inc()
			c.logger.Warn("failed to persist cache entry", zap.String("key", key), zap.Error(err))
		}
	}

	c.logger.Debug("cached", zap.String("key", key), zap.Time("expires_at", entry.ExpiresAt))
}

// Clear removes entries from both tiers and returns the count removed,
// summed across tiers. An empty pattern removes everything; otherwise only
// entries whose original key contains pattern as a substring are removed.
func (c *Cache) Clear(ctx context.Context, pattern string) int {
	_, span := c.tracer.Start(ctx, "Cache.Clear", trace.WithAttributes(attribute.String("pattern", pattern)))
	defer span.End()

	cleared := 0
	if pattern == "" {
		cleared += c.memory.Flush()
		if c.disk != nil {
			cleared += c.disk.RemoveAll()
		}
	} else {
		cleared += c.memory.RemoveMatching(pattern)
		if c.disk != nil {
			cleared += c.disk.RemoveMatching(pattern)
		}
	}

	c.logger.Info("cleared cache entries", zap.Int("count", cleared), zap.String("pattern", pattern))
	return cleared
}

// Stats returns current counters and derived values.
func (c *Cache) Stats() Stats {
	s := Stats{
		Hits:          c.metrics.Hits.Load(),
		Misses:        c.metrics.Misses.Load(),
		HitRate:       c.metrics.HitRate(),
		MemoryHits:    c.metrics.MemoryHits.Load(),
		DiskHits:      c.metrics.DiskHits.Load(),
		MemoryEntries: c.memory.Len(),
		Evictions:     c.metrics.Evictions.Load(),
		Errors:        c.metrics.Errors.Load(),
	}
	if c.disk != nil {
		s.DiskSizeBytes = c.disk.Size()
	}
	return s
}

// maybeCleanup runs a sweep of both tiers when the cleanup interval has
// elapsed since the last one. Cleanup cost is amortized across calls rather
// than paid by a timer goroutine.
func (c *Cache) maybeCleanup() {
	c.cleanupMu.Lock()
	if time.Since(c.lastCleanup) <= c.cleanupInterval {
		c.cleanupMu.Unlock()
		return
	}
	c.lastCleanup = time.Now()
	c.cleanupMu.Unlock()

	removed := c.memory.RemoveExpired()
	if c.disk != nil {
		removed += c.disk.Sweep()
	}
	if removed > 0 {
		c.logger.Debug("cleaned up expired entries", zap.Int("removed", removed))
	}
}
