package observability

import (
	"strings"
	"unicode"
)

// sanitizeString strips control characters and caps length so request-derived
// values cannot break up log lines.
func sanitizeString(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if runes := []rune(cleaned); len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}

// SanitizeRoute bounds a route pattern for logs and span attributes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod bounds an HTTP method for logs and span attributes.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}
