package httpclient

import (
	"encoding/json"
	"strings"
)

// statusMarker anchors recovery when a platform prepends log noise or
// HTML to an otherwise valid JSON body.
const statusMarker = `{"status":`

// DecodeTolerantJSON decodes body into v. When the body is not valid
// JSON as a whole, it looks for an embedded object starting at the
// status marker and decodes the balanced-brace substring instead.
func DecodeTolerantJSON(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err == nil {
		return nil
	}
	if sub, ok := extractObject(string(body)); ok {
		return json.Unmarshal([]byte(sub), v)
	}
	// Nothing salvageable: leave v zeroed, mirroring an empty response.
	return json.Unmarshal([]byte("{}"), v)
}

// TolerantObject decodes body into a generic map, recovering embedded
// JSON the same way as DecodeTolerantJSON. It never fails; a hopeless
// body yields an empty map.
func TolerantObject(body []byte) map[string]any {
	var m map[string]any
	if err := DecodeTolerantJSON(body, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// extractObject finds the balanced JSON object beginning at the status
// marker. Braces inside strings and escapes are skipped.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, statusMarker)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}
