package intake

import (
	"bytes"
	"encoding/json"
)

// JSONOrString keeps JSON bodies as-is and wraps anything else as a JSON string.
func JSONOrString(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, err := json.Marshal(string(trimmed))
	if err != nil {
		return nil
	}
	return quoted
}
