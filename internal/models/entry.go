package models

import "time"

// Entry is a cached value plus its temporal metadata. The payload is opaque:
// the cache never inspects it, it only hands it back or serializes it to disk.
//
// A zero ExpiresAt means the entry never expires.
type Entry struct {
	Data        any
	CreatedAt   time.Time
	ExpiresAt   time.Time
	AccessedAt  time.Time
	AccessCount int64
}

// NewEntry creates an Entry with AccessCount starting at 1.
func NewEntry(data any, expiresAt time.Time) *Entry {
	now := time.Now()
	return &Entry{
		Data:        data,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
		AccessedAt:  now,
		AccessCount: 1,
	}
}

// IsExpired reports whether the entry is past its expiry.
func (e *Entry) IsExpired() bool {
	return e.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether the entry is past its expiry at the given time.
func (e *Entry) IsExpiredAt(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Touch records a successful read. Callers must hold the owning tier's lock.
func (e *Entry) Touch() {
	e.AccessedAt = time.Now()
	e.AccessCount++
}
