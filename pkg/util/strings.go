package util

import (
	"strconv"
	"unicode/utf8"
)

// MaxLogBodySize caps bodies and frames written to logs.
const MaxLogBodySize = 10 * 1024

// TruncateBody shortens data to at most maxSize bytes without splitting a
// UTF-8 sequence and notes how many bytes were dropped. maxSize <= 0 means
// MaxLogBodySize.
func TruncateBody(data string, maxSize int) string {
	if maxSize <= 0 {
		maxSize = MaxLogBodySize
	}
	if len(data) <= maxSize {
		return data
	}
	cut := maxSize
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return data[:cut] + "...(" + strconv.Itoa(len(data)-cut) + " bytes truncated)"
}
