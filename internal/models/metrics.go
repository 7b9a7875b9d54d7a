package models

import "go.uber.org/atomic"

// Metrics stores cache statistics. Hits is split by the tier that served
// the read; Evictions counts memory-tier LRU evictions only.
type Metrics struct {
	Hits       *atomic.Int64
	MemoryHits *atomic.Int64
	DiskHits   *atomic.Int64
	Misses     *atomic.Int64
	Evictions  *atomic.Int64
	Errors     *atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		Hits:       atomic.NewInt64(0),
		MemoryHits: atomic.NewInt64(0),
		DiskHits:   atomic.NewInt64(0),
		Misses:     atomic.NewInt64(0),
		Evictions:  atomic.NewInt64(0),
		Errors:     atomic.NewInt64(0),
	}
}

// HitRate returns hits / (hits + misses), or 0 when no lookup has happened.
func (m *Metrics) HitRate() float64 {
	hits := m.Hits.Load()
	total := hits + m.Misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
