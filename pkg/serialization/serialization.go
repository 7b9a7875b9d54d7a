package serialization

const (
	// JSONType selects the JSON codec. This is the default and produces the
	// documented on-disk envelope format.
	JSONType = "json"

	// GobType selects the gob codec. Payload types stored through it must be
	// registered with encoding/gob by the caller.
	GobType = "gob"
)

// Decoder reads one value from an underlying stream.
type Decoder interface {
	Decode(v any) error
}

// Encoder writes one value to an underlying stream.
type Encoder interface {
	Encode(v any) error
}
