package structure

import (
	"strings"
	"unicode"
)

// NormalizeName lowers a category name and strips everything that is not a
// letter, digit, space or dash. Live category names often carry decorative
// pictograph prefixes that the document does not.
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case r == ' ' || r == '-':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// NamesMatch reports whether two category names refer to the same category:
// after normalization, one must contain the other. This tolerates a
// decorated live name matching an undecorated spec name and vice versa.
func NamesMatch(a, b string) bool {
	na := NormalizeName(a)
	nb := NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}
