// Package fingerprint derives content-addressable cache keys from unit
// text. Two texts that differ only in whitespace or letter case map to the
// same fingerprint, so the same paragraph seen on different pages still
// hits the cache. The rendering mode is folded into the key so the same
// text under a different mode is a distinct entry.
package fingerprint

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// Mode tags a fingerprint with the rendering mode the result was produced
// for. Different modes never collide for the same text.
type Mode string

const (
	ModeWord     Mode = "word"
	ModeSentence Mode = "sentence"
	ModeFull     Mode = "full"
)

// New returns the fingerprint for (text, mode).
func New(text string, mode Mode) string {
	h := fnv.New64a()
	h.Write([]byte(Normalize(text)))
	return fmt.Sprintf("%s:%016x", mode, h.Sum64())
}

// Normalize lowercases text and collapses all whitespace runs to single
// spaces, trimming the ends.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
