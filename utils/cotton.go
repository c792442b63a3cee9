package utils

import (
	"regexp"
	"strings"
)

// cottonPatterns is the shared definition of "100% cotton" used by every adapter
var cottonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`100%\s*cotton`),
	regexp.MustCompile(`100\s*%\s*cotton`),
	regexp.MustCompile(`cotton\s*100%`),
	regexp.MustCompile(`pure\s*cotton`),
	regexp.MustCompile(`all\s*cotton`),
	regexp.MustCompile(`100%\s*organic\s*cotton`),
	regexp.MustCompile(`100%\s*bci\s*cotton`),
}

// IsCotton reports whether a composition text qualifies as 100% cotton
func IsCotton(composition string) bool {
	text := strings.ToLower(strings.TrimSpace(composition))
	if text == "" {
		return false
	}

	for _, pattern := range cottonPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
