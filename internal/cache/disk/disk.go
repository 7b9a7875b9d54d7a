// Package disk is the persistent tier of the cache: one file per key inside
// a flat directory, addressed by a hash of the key. The original key is
// stored inside each file so pattern operations can match against it, and so
// a hash collision degrades to a miss instead of serving the wrong value.
//
// The store is scoped to a single process. Sharing one cache directory
// between processes is unsupported: budget enforcement lists then deletes
// without locking, so concurrent writers can transiently exceed the budget
// or lose a freshly written file.
package disk

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"

	"goflare.io/cinder/internal/models"
	"goflare.io/cinder/pkg/serialization"
)

const fileExt = ".json"

// Bloom filter sizing for the read gate. False positives only cost one
// file open, so the estimate does not need to track the real entry count.
const (
	bloomExpectedItems     = 100_000
	bloomFalsePositiveRate = 0.01
)

// envelope is the persisted record. With the default JSON codec the times
// serialize as RFC 3339 and the payload as plain JSON.
type envelope struct {
	Data        any        `json:"data"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	AccessCount int64      `json:"access_count"`
	OriginalKey string     `json:"original_key"`
}

// Store persists entries under dir, keeping total size at or below maxBytes
// (best effort, enforced after each write). A bloom filter over on-disk
// filenames short-circuits reads for keys that were never persisted.
type Store struct {
	dir      string
	maxBytes int64
	encoder  func(io.Writer) serialization.Encoder
	decoder  func(io.Reader) serialization.Decoder
	logger   *zap.Logger

	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// NewStore creates the cache directory if needed and seeds the read gate
// from the files already present.
func NewStore(
	dir string,
	maxBytes int64,
	encoder func(io.Writer) serialization.Encoder,
	decoder func(io.Reader) serialization.Decoder,
	logger *zap.Logger,
) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	s := &Store{
		dir:      dir,
		maxBytes: maxBytes,
		encoder:  encoder,
		decoder:  decoder,
		logger:   logger,
		filter:   bloom.NewWithEstimates(bloomExpectedItems, bloomFalsePositiveRate),
	}
	s.reseedFilter()
	return s, nil
}

// Read returns the persisted entry for key. Corrupt files are deleted and
// reported as models.ErrCorruptEntry; absent, expired, or hash-collided
// files are reported as models.ErrKeyNotFound.
func (s *Store) Read(key string) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := filenameFor(key)
	if !s.filter.TestString(name) {
		return nil, models.ErrKeyNotFound
	}

	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to open cache file: %w", err)
	}

	var env envelope
	decodeErr := s.decoder(f).Decode(&env)
	_ = f.Close()
	if decodeErr != nil {
		s.removeFile(path)
		s.logger.Warn("removed unparseable cache file",
			zap.String("path", path), zap.Error(decodeErr))
		return nil, models.ErrCorruptEntry
	}

	if env.OriginalKey != key {
		// Hash collision: the file belongs to another key. Leave it alone.
		s.logger.Warn("cache filename collision",
			zap.String("key", key), zap.String("stored_key", env.OriginalKey))
		return nil, models.ErrKeyNotFound
	}

	entry := env.toEntry()
	if entry.IsExpired() {
		s.removeFile(path)
		s.logger.Debug("expired entry removed from disk", zap.String("key", key))
		return nil, models.ErrKeyNotFound
	}
	return entry, nil
}

// Write persists the entry, overwriting unconditionally, then enforces the
// size budget.
func (s *Store) Write(key string, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := filenameFor(key)
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	env := newEnvelope(key, entry)
	if err := s.encoder(f).Encode(&env); err != nil {
		_ = f.Close()
		s.removeFile(path)
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := f.Close(); err != nil {
		s.removeFile(path)
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	s.filter.AddString(name)
	s.enforceBudget()
	return nil
}

// Remove deletes the file for key and reports whether one existed.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeFile(filepath.Join(s.dir, filenameFor(key)))
}

// RemoveMatching deletes every file whose stored original key contains
// pattern as a substring and returns the count deleted. Files that cannot
// be parsed are deleted as corrupt but not counted as matches.
func (s *Store) RemoveMatching(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, path := range s.listFiles() {
		key, err := s.readOriginalKey(path)
		if err != nil {
			s.removeFile(path)
			continue
		}
		if strings.Contains(key, pattern) && s.removeFile(path) {
			removed++
		}
	}
	s.reseedFilter()
	return removed
}

// RemoveAll deletes every cache file and returns the count deleted.
func (s *Store) RemoveAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, path := range s.listFiles() {
		if s.removeFile(path) {
			removed++
		}
	}
	s.filter.ClearAll()
	return removed
}

// Sweep deletes every expired or unparseable file and returns the count
// deleted. The read gate is rebuilt from the surviving files.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, path := range s.listFiles() {
		env, err := s.readEnvelope(path)
		if err != nil || env.toEntry().IsExpiredAt(now) {
			if s.removeFile(path) {
				removed++
			}
		}
	}
	if removed > 0 {
		s.reseedFilter()
		s.logger.Debug("swept disk cache", zap.Int("removed", removed))
	}
	return removed
}

// Size returns the total bytes occupied by all cache files.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sizeLocked()
}

// enforceBudget deletes files oldest-modification-time-first until the
// total size is at or below maxBytes. Callers hold s.mu.
func (s *Store) enforceBudget() {
	if s.maxBytes <= 0 {
		return
	}

	type fileStat struct {
		path    string
		size    int64
		modTime time.Time
	}

	var (
		files []fileStat
		total int64
	)
	for _, path := range s.listFiles() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		files = append(files, fileStat{path: path, size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
	}
	if total <= s.maxBytes {
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})
	for _, f := range files {
		if total <= s.maxBytes {
			break
		}
		if s.removeFile(f.path) {
			total -= f.size
			s.logger.Debug("removed cache file over size budget", zap.String("path", f.path))
		}
	}
}

func (s *Store) sizeLocked() int64 {
	var total int64
	for _, path := range s.listFiles() {
		if info, err := os.Stat(path); err == nil {
			total += info.Size()
		}
	}
	return total
}

// listFiles returns the paths of all cache files in the directory.
func (s *Store) listFiles() []string {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("failed to list cache directory", zap.String("dir", s.dir), zap.Error(err))
		return nil
	}
	var paths []string
	for _, de := range dirEntries {
		if !de.IsDir() && strings.HasSuffix(de.Name(), fileExt) {
			paths = append(paths, filepath.Join(s.dir, de.Name()))
		}
	}
	return paths
}

func (s *Store) readEnvelope(path string) (*envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var env envelope
	if err := s.decoder(f).Decode(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (s *Store) readOriginalKey(path string) (string, error) {
	env, err := s.readEnvelope(path)
	if err != nil {
		return "", err
	}
	return env.OriginalKey, nil
}

func (s *Store) removeFile(path string) bool {
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove cache file", zap.String("path", path), zap.Error(err))
		}
		return false
	}
	return true
}

// reseedFilter rebuilds the read gate from the directory listing. Callers
// hold s.mu (or are the constructor).
func (s *Store) reseedFilter() {
	s.filter.ClearAll()
	for _, path := range s.listFiles() {
		s.filter.AddString(filepath.Base(path))
	}
}

func newEnvelope(key string, entry *models.Entry) envelope {
	env := envelope{
		Data:        entry.Data,
		CreatedAt:   entry.CreatedAt,
		AccessCount: entry.AccessCount,
		OriginalKey: key,
	}
	if !entry.ExpiresAt.IsZero() {
		expiresAt := entry.ExpiresAt
		env.ExpiresAt = &expiresAt
	}
	return env
}

func (env *envelope) toEntry() *models.Entry {
	entry := &models.Entry{
		Data:        env.Data,
		CreatedAt:   env.CreatedAt,
		AccessedAt:  time.Now(),
		AccessCount: env.AccessCount,
	}
	if env.ExpiresAt != nil {
		entry.ExpiresAt = *env.ExpiresAt
	}
	if entry.AccessCount < 1 {
		entry.AccessCount = 1
	}
	return entry
}

// filenameFor maps a key to its on-disk filename: the FNV-64a hash of the
// key in hex, plus a fixed extension. The hash is a lookup shortcut only;
// Read verifies the stored key.
func filenameFor(key string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil)) + fileExt
}
