package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// encodeDoc marshals an arbitrary document value into its stored JSON form.
func encodeDoc(doc any) (json.RawMessage, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return raw, nil
}

// mergeFields applies a partial update to a stored document. Dotted keys
// descend into nested objects, creating intermediate maps as needed, so
// callers can flip a single entry of an embedded map ("typing.<uid>")
// without rewriting the whole document.
func mergeFields(data json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	for path, value := range fields {
		setPath(body, path, value)
	}
	out, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return out, nil
}

func setPath(body map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := body
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = normalize(value)
}
