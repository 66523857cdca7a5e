// Package normalizers provides field normalization functions for identity matching
package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// CollapseWhitespace replaces runs of whitespace with a single space
func CollapseWhitespace(s string) string {
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeIdentity normalizes a value for identity-key comparison:
// lowercase, trimmed, inner whitespace collapsed.
func NormalizeIdentity(s string) string {
	return CollapseWhitespace(Trim(Lowercase(s)))
}

// IdentityKey builds the composite identity key a candidate or listing
// is matched on. Empty segments are kept so that "vw|golf|" and
// "vw|golf|gti" never collide.
func IdentityKey(make, model, variant string) string {
	return NormalizeIdentity(make) + "|" + NormalizeIdentity(model) + "|" + NormalizeIdentity(variant)
}
