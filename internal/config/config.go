package config

import (
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"goflare.io/cinder/pkg/serialization"
)

// Defaults mirror a client-side document cache: a small memory footprint, a
// modest disk budget, and hourly call-driven cleanup.
const (
	DefaultMaxMemoryEntries = 1000
	DefaultMaxDiskBytes     = 100 * 1024 * 1024
	DefaultCleanupInterval  = time.Hour
)

var (
	ErrInvalidMaxMemoryEntries = errors.New("max memory entries must be at least 1")
	ErrInvalidMaxDiskBytes     = errors.New("max disk bytes must be greater than 0")
	ErrInvalidCleanupInterval  = errors.New("cleanup interval must be greater than 0")
)

// Config configures the two-tier cache.
type Config struct {
	// CacheDir is the disk tier's directory. Empty means memory-only.
	CacheDir string
	// DefaultTTL applies when neither an explicit TTL nor header hints are
	// given. Zero means entries never expire by default.
	DefaultTTL time.Duration

	MaxMemoryEntries int
	MaxDiskBytes     int64
	CleanupInterval  time.Duration

	Serialization SerializationConfig
	Logger        *zap.Logger
}

// SerializationConfig selects the codec used to persist entries.
type SerializationConfig struct {
	Type    string
	Encoder func(io.Writer) serialization.Encoder
	Decoder func(io.Reader) serialization.Decoder
}

// Option mutates a Config during construction.
type Option func(*Config) error

// NewConfig builds a Config from defaults plus options and validates it.
func NewConfig(options ...Option) (*Config, error) {
	cfg := &Config{
		MaxMemoryEntries: DefaultMaxMemoryEntries,
		MaxDiskBytes:     DefaultMaxDiskBytes,
		CleanupInterval:  DefaultCleanupInterval,
		Serialization: SerializationConfig{
			Type:    serialization.JSONType,
			Encoder: serialization.JsonEncoder,
			Decoder: serialization.JsonDecoder,
		},
	}

	for _, option := range options {
		if err := option(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the bounds and intervals. Callers that mutate a Config
// after construction must call it again before use.
func (c *Config) Validate() error {
	if c.MaxMemoryEntries < 1 {
		return ErrInvalidMaxMemoryEntries
	}
	if c.MaxDiskBytes <= 0 {
		return ErrInvalidMaxDiskBytes
	}
	if c.CleanupInterval <= 0 {
		return ErrInvalidCleanupInterval
	}
	return nil
}
