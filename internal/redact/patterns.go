package redact

import (
	"regexp"
	"strings"
)

var sensitiveKeyMarkers = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"auth",
	"authorization",
	"cookie",
	"set-cookie",
	"session",
	"private_key",
	"access_key",
	"refresh_token",
}

// Provider API-key shapes.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{30,}`),
	regexp.MustCompile(`xox[baprs]-[a-zA-Z0-9-]{10,}`),
	regexp.MustCompile(`ya29\.[0-9A-Za-z_-]+`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{20,}`),
}

var phiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b\d{9}\b`),
	regexp.MustCompile(`(?i)\bMRN[:\s-]*\d{5,}\b`),
	regexp.MustCompile(`(?i)\bDOB[:\s-]*\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
	regexp.MustCompile(`(?i)\bSSN[:\s-]*\d{3}-\d{2}-\d{4}\b`),
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

// IsSensitiveKey reports whether values under key must be masked whole.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// DetectSecrets reports whether text contains a provider API-key shape.
func DetectSecrets(text string) bool {
	return matchesAny(secretPatterns, text)
}

// DetectPhi reports whether text contains a PHI-like identifier. URLs are
// stripped first so numeric path and query segments do not count.
func DetectPhi(text string) bool {
	return matchesAny(phiPatterns, urlPattern.ReplaceAllString(text, ""))
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	if text == "" {
		return false
	}
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
