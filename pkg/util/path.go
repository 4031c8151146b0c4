package util

import (
	"path/filepath"
	"slices"
	"strings"
)

// SafeFilePath cleans a relative path and rejects absolute paths and any
// path that escapes its base directory.
func SafeFilePath(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	// filepath.Clean leaves backslashes alone on unix.
	parts := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
	if strings.Contains(p, `\`) && slices.Contains(parts, "..") {
		return "", false
	}
	cleaned := filepath.Clean(p)
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", false
	}
	return cleaned, true
}

// SafeJoin joins rel onto root, rejecting results outside root. Leading
// slashes on rel are ignored, so URL paths can be passed as they are.
// An empty rel yields root itself.
func SafeJoin(root, rel string) (string, bool) {
	rel = strings.TrimLeft(rel, "/")
	if rel == "" {
		return filepath.Clean(root), true
	}
	cleaned, ok := SafeFilePath(rel)
	if !ok {
		return "", false
	}
	return filepath.Join(root, cleaned), true
}
