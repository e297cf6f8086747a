package textutil

import (
	"crypto/md5"
	"fmt"
)

// Hash returns a stable hex digest used as a cache key for document
// text. md5 is fine here: the key is not security sensitive.
func Hash(input string) string {
	sum := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", sum)
}

// Truncate bounds s to max bytes without splitting a UTF-8 rune.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
