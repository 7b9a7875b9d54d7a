package models

import "errors"

var (
	// ErrKeyNotFound is returned by tier lookups when a key is absent or expired.
	ErrKeyNotFound = errors.New("key not found in cache")
	// ErrCorruptEntry is returned when a persisted entry cannot be parsed.
	ErrCorruptEntry = errors.New("corrupt cache entry")
)
