package serialization

import (
	"encoding/json"
	"io"
)

// Json wraps json.Decoder and json.Encoder behind the codec interfaces. It
// is the default disk codec and yields the documented envelope format.
type Json struct {
	dec *json.Decoder
	enc *json.Encoder
}

// Decode decodes the next JSON value from the underlying stream into v.
func (j *Json) Decode(v any) error {
	return j.dec.Decode(v)
}

// Encode serializes v as JSON followed by a newline.
func (j *Json) Encode(v any) error {
	return j.enc.Encode(v)
}

// JsonDecoder returns a Decoder reading JSON from r.
func JsonDecoder(r io.Reader) Decoder {
	return &Json{dec: json.NewDecoder(r)}
}

// JsonEncoder returns an Encoder writing JSON to w.
func JsonEncoder(w io.Writer) Encoder {
	return &Json{enc: json.NewEncoder(w)}
}
