package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Serialized object fields decode into generic values (map[string]any,
// []any, float64, ...) unless the caller decodes into a concrete type.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec used for newly created databases.
var Default Codec = GoJSON{}
