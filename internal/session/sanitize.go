package session

import (
	"strings"
)

// Redacted replaces any value whose key looks secret-bearing.
const Redacted = "[REDACTED]"

var sensitiveKeywords = []string{
	"password",
	"code",
	"totp",
	"secret",
	"token",
	"credential",
}

// SanitizeParams returns a deep copy of params with every value under a
// sensitive key replaced by the redaction marker. Keys match by lowercase
// substring, and nested maps are walked recursively, so a secret can never
// reach the persisted history regardless of how the executor nests it.
func SanitizeParams(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	clean := make(map[string]interface{}, len(params))
	for key, value := range params {
		if isSensitiveKey(key) {
			clean[key] = Redacted
			continue
		}
		switch v := value.(type) {
		case map[string]interface{}:
			clean[key] = SanitizeParams(v)
		default:
			clean[key] = value
		}
	}
	return clean
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
