package router

import "unicode/utf8"

// Chunk splits a long response into platform-message-sized segments. At most
// maxParts segments are returned; truncated reports whether content was cut.
// Cuts land on rune boundaries so no segment carries a torn multibyte rune.
func Chunk(s string, size, maxParts int) (parts []string, truncated bool) {
	if size <= 0 || s == "" {
		return nil, false
	}
	for len(s) > 0 {
		if maxParts > 0 && len(parts) == maxParts {
			return parts, true
		}
		if len(s) <= size {
			parts = append(parts, s)
			break
		}
		cut := runeSafeCut(s, size)
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	return parts, false
}

// runeSafeCut backs n off to the nearest rune start in s. A rune wider than
// n itself is cut through rather than looping forever.
func runeSafeCut(s string, n int) int {
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return n
	}
	return cut
}
