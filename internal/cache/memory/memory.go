// Package memory is the in-process tier of the cache: a bounded key→Entry
// map with LRU eviction. All operations are synchronous and serialized by a
// single mutex; there is no background goroutine.
package memory

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"goflare.io/cinder/internal/models"
)

// Store holds up to maxEntries entries. Inserting a new key at capacity
// evicts the entry with the oldest AccessedAt; ties break by insertion
// order. Overwriting an existing key never evicts.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]*models.Entry
	order      map[string]uint64 // insertion sequence, for deterministic ties
	seq        uint64
	maxEntries int
	logger     *zap.Logger
}

func NewStore(maxEntries int, logger *zap.Logger) *Store {
	return &Store{
		entries:    make(map[string]*models.Entry),
		order:      make(map[string]uint64),
		maxEntries: maxEntries,
		logger:     logger,
	}
}

// Get returns the live entry for key, updating its access metadata. An
// expired entry is removed and reported as absent.
func (s *Store) Get(key string) (*models.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if entry.IsExpired() {
		s.remove(key)
		s.logger.Debug("expired entry removed from memory", zap.String("key", key))
		return nil, false
	}
	entry.Touch()
	return entry, true
}

// Put inserts or overwrites an entry and reports whether an eviction was
// needed to make room.
func (s *Store) Put(key string, entry *models.Entry) (evicted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictLRU()
		evicted = true
	}
	s.insert(key, entry)
	return evicted
}

// PutIfVacant inserts only when the tier has spare capacity (or the key is
// already present). It never evicts; promotion from the disk tier goes
// through here.
func (s *Store) PutIfVacant(key string, entry *models.Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		return false
	}
	s.insert(key, entry)
	return true
}

// Remove deletes key and reports whether it was present.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return false
	}
	s.remove(key)
	return true
}

// RemoveExpired scans the whole tier and removes every expired entry,
// returning the count removed.
func (s *Store) RemoveExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range s.entries {
		if entry.IsExpiredAt(now) {
			s.remove(key)
			removed++
		}
	}
	return removed
}

// RemoveMatching removes every entry whose key contains pattern as a
// substring and returns the count removed.
func (s *Store) RemoveMatching(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.entries {
		if strings.Contains(key, pattern) {
			s.remove(key)
			removed++
		}
	}
	return removed
}

// Flush removes everything and returns the count removed.
func (s *Store) Flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.entries)
	s.entries = make(map[string]*models.Entry)
	s.order = make(map[string]uint64)
	return removed
}

// Len returns the number of resident entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) insert(key string, entry *models.Entry) {
	if _, exists := s.entries[key]; !exists {
		s.seq++
		s.order[key] = s.seq
	}
	s.entries[key] = entry
}

func (s *Store) remove(key string) {
	delete(s.entries, key)
	delete(s.order, key)
}

// evictLRU removes the entry with the oldest AccessedAt. Callers hold s.mu.
func (s *Store) evictLRU() {
	var (
		lruKey string
		found  bool
	)
	for key, entry := range s.entries {
		if !found {
			lruKey, found = key, true
			continue
		}
		lru := s.entries[lruKey]
		if entry.AccessedAt.Before(lru.AccessedAt) ||
			(entry.AccessedAt.Equal(lru.AccessedAt) && s.order[key] < s.order[lruKey]) {
			lruKey = key
		}
	}
	if !found {
		return
	}
	s.remove(lruKey)
	s.logger.Debug("evicted LRU entry", zap.String("key", lruKey))
}
