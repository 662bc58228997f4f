// Package cache memoizes analysis results by a content fingerprint.
//
// The fingerprint is a 32-bit polynomial rolling hash. It is fast and
// deterministic but not collision resistant: two different documents can map
// to the same key. That is an accepted limitation for a short-lived
// interactive cache and must not be "fixed" by guessing at a stronger hash.
package cache

import (
	"strconv"
	"unicode/utf16"
)

// Fingerprint is the cache key computed from document text.
type Fingerprint int32

// Compute hashes text as h = h*31 + c over its UTF-16 code units, wrapping
// at 32 bits.
func Compute(text string) Fingerprint {
	var h int32
	for _, r := range text {
		if r >= 0x10000 {
			hi, lo := utf16.EncodeRune(r)
			h = h*31 + int32(hi)
			h = h*31 + int32(lo)
			continue
		}
		h = h*31 + int32(r)
	}
	return Fingerprint(h)
}

// String renders the fingerprint as a signed decimal.
func (f Fingerprint) String() string {
	return strconv.FormatInt(int64(f), 10)
}
