package cinder

import "errors"

var (
	// ErrUnsupportedSerialization is returned by New when WithSerialization
	// names an unknown codec.
	ErrUnsupportedSerialization = errors.New("unsupported serialization type")
)
