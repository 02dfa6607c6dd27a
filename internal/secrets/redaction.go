package secrets

import (
	"fmt"
	"regexp"
	"strings"
)

// Redactor masks sensitive substrings in text before it reaches a log line,
// covering the shapes this pipeline can actually leak: DSNs in error
// messages, bearer/basic auth headers echoed from a failed HTTP call, and
// JWT-shaped values.
type Redactor struct {
	patterns    []*regexp.Regexp
	replacement string
}

// NewRedactor creates a Redactor with the default pattern set.
func NewRedactor() *Redactor {
	defaultPatterns := []string{
		`postgres://[^:]+:[^@]+@[^/]+/[^\s?"']+`,
		`(?i)(?:api[_-]?key|token|secret|password|pwd)["\s]*[:=]["\s]*[^\s"',}]+`,
		`(?i)bearer\s+[a-zA-Z0-9\-\._~\+/]+=*`,
		`(?i)basic\s+[a-zA-Z0-9\+/]+=*`,
		`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`, // JWT
	}

	patterns := make([]*regexp.Regexp, len(defaultPatterns))
	for i, pattern := range defaultPatterns {
		patterns[i] = regexp.MustCompile(pattern)
	}

	return &Redactor{patterns: patterns, replacement: "[REDACTED]"}
}

// RedactString masks every pattern match in input.
func (r *Redactor) RedactString(input string) string {
	result := input
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, r.replacement)
	}
	return result
}

// RedactMap masks values whose key name suggests sensitive content, and
// recurses into nested maps; other values pass through RedactString.
func (r *Redactor) RedactMap(input map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(input))
	for k, v := range input {
		if r.isSensitiveKey(k) {
			result[k] = r.replacement
			continue
		}
		result[k] = r.redactValue(v)
	}
	return result
}

func (r *Redactor) redactValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return r.RedactString(v)
	case map[string]interface{}:
		return r.RedactMap(v)
	default:
		return value
	}
}

func (r *Redactor) isSensitiveKey(key string) bool {
	sensitiveKeys := []string{
		"password", "pwd", "pass", "secret", "token", "key", "auth",
		"credential", "dsn", "connection_string", "private_key",
		"access_key", "secret_key", "api_key", "bearer", "authorization",
	}
	lowerKey := strings.ToLower(key)
	for _, sensitiveKey := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitiveKey) {
			return true
		}
	}
	return false
}

// ValidateSecretSafety reports which redaction patterns match input,
// useful as a guard before logging a string of uncertain origin.
func ValidateSecretSafety(input string) []string {
	r := NewRedactor()
	var violations []string
	for i, pattern := range r.patterns {
		if pattern.MatchString(input) {
			violations = append(violations, fmt.Sprintf("pattern_%d_matched", i))
		}
	}
	return violations
}
