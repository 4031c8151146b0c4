package matching

import "github.com/bmatcuk/doublestar/v4"

// MatchGlob matches a doublestar glob against a slash-separated path.
// "*" matches within one segment and "**" across segments.
// Invalid patterns never match.
func MatchGlob(pattern, path string) bool {
	if pattern == "" {
		return false
	}
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}

// MatchAnyGlob reports whether path matches at least one pattern.
func MatchAnyGlob(patterns []string, path string) bool {
	for _, p := range patterns {
		if MatchGlob(p, path) {
			return true
		}
	}
	return false
}

// ValidateGlob returns an error when pattern is not a valid glob.
func ValidateGlob(pattern string) error {
	if !doublestar.ValidatePattern(pattern) {
		return doublestar.ErrBadPattern
	}
	return nil
}
