package channelsync

import (
	"encoding/json"
	"os"
	"strings"
)

// RedactedMarker replaces any value whose key or string content matches a
// configured sensitive pattern.
const RedactedMarker = "[REDACTED]"

var defaultSensitivePatterns = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"credit_card",
	"cardnumber",
	"cvv",
	"refreshtoken",
}

func sensitivePatterns() []string {
	raw := strings.TrimSpace(os.Getenv("AUDIT_REDACT_PATTERNS"))
	if raw == "" {
		return defaultSensitivePatterns
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultSensitivePatterns
	}
	return out
}

// RedactJSON parses raw JSON and returns it with sensitive fields replaced.
// Invalid JSON is replaced wholesale rather than leaked.
func RedactJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		out, _ := json.Marshal(RedactedMarker)
		return out
	}
	redacted := RedactValue(parsed, sensitivePatterns())
	out, err := json.Marshal(redacted)
	if err != nil {
		return nil
	}
	return out
}

// RedactValue walks maps and slices recursively. Keys and string values are
// matched case-insensitively against the pattern list; matches become the
// fixed marker. Non-string primitives pass through untouched, so applying
// the redaction twice is a no-op on the second pass.
func RedactValue(value any, patterns []string) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, val := range typed {
			if matchesPattern(key, patterns) {
				out[key] = RedactedMarker
				continue
			}
			out[key] = RedactValue(val, patterns)
		}
		return out
	case []any:
		out := make([]any, 0, len(typed))
		for _, entry := range typed {
			out = append(out, RedactValue(entry, patterns))
		}
		return out
	case string:
		if typed != RedactedMarker && matchesPattern(typed, patterns) {
			return RedactedMarker
		}
		return typed
	default:
		return value
	}
}

func matchesPattern(s string, patterns []string) bool {
	lowered := strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
