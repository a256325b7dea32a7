package utils

import (
	"regexp"
	"strings"
)

/* Field names whose values never reach a log line */
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(password|passwd|pwd)`),
	regexp.MustCompile(`(?i)(secret|token|auth)`),
	regexp.MustCompile(`(?i)(credential|cred)`),
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+$`)

/* RedactEmail keeps the first character of the local part and the domain */
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		if email == "" {
			return ""
		}
		return "[REDACTED]"
	}
	local, domain := email[:at], email[at+1:]
	return local[:1] + "***@" + domain
}

/* SanitizeValue sanitizes a value if its key or shape looks sensitive */
func SanitizeValue(key string, value interface{}) interface{} {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(key) {
			return "[REDACTED]"
		}
	}

	if str, ok := value.(string); ok && emailPattern.MatchString(str) {
		return RedactEmail(str)
	}

	return value
}

/* SanitizeMap returns a copy of data with sensitive values redacted */
func SanitizeMap(data map[string]interface{}) map[string]interface{} {
	sanitized := make(map[string]interface{}, len(data))

	for key, value := range data {
		switch v := value.(type) {
		case map[string]interface{}:
			sanitized[key] = SanitizeMap(v)
		default:
			sanitized[key] = SanitizeValue(key, v)
		}
	}

	return sanitized
}
