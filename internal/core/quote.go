package core

import (
	"bytes"
	"encoding/json"
)

// Quote returns s as a JavaScript string literal. JSON string syntax is a
// subset of JS, and U+2028/U+2029 are escaped by encoding/json.
func Quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
