package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goflare.io/cinder/internal/models"
)

func newTestStore(maxEntries int) *Store {
	return NewStore(maxEntries, zap.NewNop())
}

func liveEntry(data any) *models.Entry {
	return models.NewEntry(data, time.Time{})
}

func expiredEntry(data any) *models.Entry {
	return models.NewEntry(data, time.Now().Add(-time.Second))
}

func TestGetUpdatesAccessMetadata(t *testing.T) {
	s := newTestStore(10)
	s.Put("k", liveEntry("v"))

	entry, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", entry.Data)
	require.Equal(t, int64(2), entry.AccessCount, "created at 1, incremented on read")
}

func TestGetRemovesExpiredEntry(t *testing.T) {
	s := newTestStore(10)
	s.Put("k", expiredEntry("v"))

	_, ok := s.Get("k")
	require.False(t, ok)
	require.Equal(t, 0, s.Len(), "expired entry must be removed on observation")
}

func TestLRUEviction(t *testing.T) {
	s := newTestStore(2)
	s.Put("k1", liveEntry(1))
	s.Put("k2", liveEntry(2))

	// Touch k1 so k2 becomes least recently used.
	_, ok := s.Get("k1")
	require.True(t, ok)

	evicted := s.Put("k3", liveEntry(3))
	require.True(t, evicted)

	_, ok = s.Get("k2")
	require.False(t, ok, "k2 should have been evicted")
	_, ok = s.Get("k1")
	require.True(t, ok)
	_, ok = s.Get("k3")
	require.True(t, ok)
	require.Equal(t, 2, s.Len())
}

func TestOverwriteNeverEvicts(t *testing.T) {
	s := newTestStore(2)
	s.Put("k1", liveEntry(1))
	s.Put("k2", liveEntry(2))

	evicted := s.Put("k1", liveEntry("new"))
	require.False(t, evicted)
	require.Equal(t, 2, s.Len())

	entry, ok := s.Get("k1")
	require.True(t, ok)
	require.Equal(t, "new", entry.Data)
}

func TestPutIfVacant(t *testing.T) {
	s := newTestStore(1)
	require.True(t, s.PutIfVacant("k1", liveEntry(1)))

	// At capacity: promotion must not evict.
	require.False(t, s.PutIfVacant("k2", liveEntry(2)))
	_, ok := s.Get("k1")
	require.True(t, ok)

	// Overwriting a resident key is always allowed.
	require.True(t, s.PutIfVacant("k1", liveEntry("new")))
}

func TestRemoveExpired(t *testing.T) {
	s := newTestStore(10)
	s.Put("live", liveEntry(1))
	s.Put("dead1", expiredEntry(2))
	s.Put("dead2", expiredEntry(3))

	require.Equal(t, 2, s.RemoveExpired())
	require.Equal(t, 1, s.Len())

	_, ok := s.Get("live")
	require.True(t, ok)
}

func TestRemoveMatching(t *testing.T) {
	s := newTestStore(10)
	s.Put("a/example.com/1", liveEntry(1))
	s.Put("a/example.com/2", liveEntry(2))
	s.Put("b/other.com/1", liveEntry(3))

	require.Equal(t, 2, s.RemoveMatching("example.com"))

	_, ok := s.Get("b/other.com/1")
	require.True(t, ok)
	require.Equal(t, 1, s.Len())
}

func TestFlush(t *testing.T) {
	s := newTestStore(10)
	s.Put("k1", liveEntry(1))
	s.Put("k2", liveEntry(2))

	require.Equal(t, 2, s.Flush())
	require.Equal(t, 0, s.Len())
}

func TestRemove(t *testing.T) {
	s := newTestStore(10)
	s.Put("k", liveEntry(1))

	require.True(t, s.Remove("k"))
	require.False(t, s.Remove("k"))
}
