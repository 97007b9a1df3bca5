// Package codec centralizes the encoding of Object fields and index key
// maps.
//
// Codec selection is a breaking-change boundary: bytes written with one
// codec may not decode with another. A database records the name of its
// codec in the manifest and is reopened with the matching built-in codec.
package codec

import "fmt"

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Canonical re-encodes data through a generic value so equal documents
// yield equal bytes regardless of the Go type they were marshaled from:
// struct fields and map keys come out in the same order. Empty data stays
// empty.
func Canonical(c Codec, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := c.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("codec %s: %w", c.Name(), err)
	}
	if v == nil {
		return nil, nil
	}
	return c.Marshal(v)
}
