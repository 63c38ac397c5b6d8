// Package dedupe implements the duplicate-detection passes content items go
// through: exact-key filtering at ingestion, fuzzy cross-source resolution,
// and the cross-type collapse at digest assembly.
package dedupe

import (
	"strings"
	"unicode"

	"citybrief/internal/core"
)

// GenerateKey derives the stable dedup fingerprint for an item: the content
// type joined with the normalized title. The type is part of the key so a
// news story and a transit alert about the same incident never collide at
// the exact-match stage; that collision is resolved later, at the cross-type
// pass during digest assembly.
func GenerateKey(contentType core.ContentType, title string) string {
	return string(contentType) + ":" + TitleKey(title)
}

// TitleKey normalizes a title for identity comparison: lowercase, punctuation
// stripped, whitespace collapsed.
func TitleKey(title string) string {
	return strings.Join(tokens(title), " ")
}

// tokens splits a title into normalized words. Letters and digits are kept;
// every other rune separates tokens.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
