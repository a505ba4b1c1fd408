package config

import "strings"

// RedactedValue replaces sensitive values in diagnostics.
const RedactedValue = "***REDACTED***"

var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"credential",
	"key",
	"auth",
}

// IsSensitiveKey reports whether a key name suggests a secret value.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Redacted returns a copy of the configuration suitable for logging.
// Non-empty values of sensitive keys are replaced with RedactedValue.
func (c *Configuration) Redacted() map[string]string {
	out := make(map[string]string, c.Len())
	for _, k := range c.Keys() {
		v := c.values[k]
		if v != "" && IsSensitiveKey(k) {
			v = RedactedValue
		}
		out[k] = v
	}
	return out
}
