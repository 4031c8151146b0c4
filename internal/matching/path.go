package matching

import "strings"

// ParamPrefix marks a wildcard segment in a segment pattern.
const ParamPrefix = ":"

// MatchURL reports whether path matches pattern.
func MatchURL(pattern, path string) bool {
	if pattern == "" {
		return true
	}

	pattern = strings.TrimPrefix(pattern, "/")
	path = strings.TrimPrefix(path, "/")

	if HasParams(pattern) {
		return matchSegments(pattern, path)
	}
	return strings.Contains(path, pattern)
}

// HasParams reports whether pattern contains at least one ":name" segment.
func HasParams(pattern string) bool {
	for _, seg := range strings.Split(pattern, "/") {
		if strings.HasPrefix(seg, ParamPrefix) {
			return true
		}
	}
	return false
}

// matchSegments compares pattern and path segment by segment.
func matchSegments(pattern, path string) bool {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	if len(patternParts) != len(pathParts) {
		return false
	}

	for i, part := range patternParts {
		if strings.HasPrefix(part, ParamPrefix) {
			continue
		}
		if part != pathParts[i] {
			return false
		}
	}
	return true
}

// PathParams extracts the values bound to ":name" segments.
// Returns nil when pattern is not a segment pattern or does not match path.
// Example: pattern "/bff/:id/config" with path "/bff/42/config" returns {"id": "42"}.
func PathParams(pattern, path string) map[string]string {
	pattern = strings.TrimPrefix(pattern, "/")
	path = strings.TrimPrefix(path, "/")

	if !HasParams(pattern) || !matchSegments(pattern, path) {
		return nil
	}

	pathParts := strings.Split(path, "/")
	params := make(map[string]string)
	for i, part := range strings.Split(pattern, "/") {
		if name, ok := strings.CutPrefix(part, ParamPrefix); ok && name != "" {
			params[name] = pathParts[i]
		}
	}
	return params
}
