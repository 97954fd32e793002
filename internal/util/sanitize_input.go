package util

import (
	"html"
	"strings"
)

// SanitizeInput trims whitespace and escapes HTML/script-like characters
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// ContainsSuspicious reports whether the input carries script-injection markers
func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	badPatterns := []string{"<", ">", "${", "javascript:", "onerror=", "onload="}
	for _, p := range badPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
