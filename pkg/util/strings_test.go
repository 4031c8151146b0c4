package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeFilePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"api/users", "api/users", true},
		{"api//users/", "api/users", true},
		{"a/../b", "b", true},
		{"../secret", "", false},
		{"a/../../secret", "", false},
		{"..", "", false},
		{"/etc/passwd", "", false},
		{`a\..\..\secret`, "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := SafeFilePath(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSafeJoin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		root   string
		rel    string
		want   string
		wantOK bool
	}{
		{"empty rel", "rec/active", "", "rec/active", true},
		{"leading slash stripped", "rec/active", "/api/users", "rec/active/api/users", true},
		{"nested", "rec", "a/b", "rec/a/b", true},
		{"escape", "rec", "../x", "", false},
		{"escape after slash", "rec", "/../../x", "", false},
		{"resolves inside", "rec", "a/../b", "rec/b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := SafeJoin(tt.root, tt.rel)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncateBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		maxSize int
		want    string
	}{
		{"short", "hello", 100, "hello"},
		{"exact", "12345", 5, "12345"},
		{"one over", "123456", 5, "12345...(1 bytes truncated)"},
		{"empty", "", 10, ""},
		{"keeps runes whole", "aé", 2, "a...(2 bytes truncated)"},
		{"default limit", "hello", 0, "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, TruncateBody(tt.data, tt.maxSize))
		})
	}
}

func TestTruncateBody_DefaultLimit(t *testing.T) {
	t.Parallel()

	data := strings.Repeat("x", MaxLogBodySize+100)
	got := TruncateBody(data, -1)
	assert.Equal(t, strings.Repeat("x", MaxLogBodySize)+"...(100 bytes truncated)", got)
}
