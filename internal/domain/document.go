package domain

import (
	"encoding/json"
	"fmt"
)

// Document is a stored record: an id plus its JSON body.
type Document struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// EncodeFields converts v (a struct or map) into top-level document fields.
func EncodeFields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("document body must be an object: %w", err)
	}
	return fields, nil
}

// MergeFields overwrites top-level keys of an existing JSON object.
// Nested values are replaced, not merged.
func MergeFields(existing json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	current := make(map[string]any)
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &current); err != nil {
			return nil, fmt.Errorf("existing document is not an object: %w", err)
		}
	}
	for k, v := range fields {
		current[k] = v
	}
	return json.Marshal(current)
}
