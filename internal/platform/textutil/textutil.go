// Package textutil provides rune- and UTF-16-aware text helpers used when
// deriving titles, previews and messages for the forum.
//
// Telegram counts message length in UTF-16 code units, so anything sent to the
// transport is measured with UTF16Len and cut with TruncateUTF16.
package textutil

import (
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Ellipsis is appended to shortened text.
const Ellipsis = "..."

// Normalize returns s in Unicode NFC form with surrounding whitespace removed.
// Text that feeds deterministic comparisons must go through it first.
func Normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// UTF16Len returns the number of UTF-16 code units needed to encode the string.
func UTF16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// TruncateUTF16 returns the longest prefix of s that fits in maxUnits UTF-16 code units.
func TruncateUTF16(s string, maxUnits int) string {
	if maxUnits <= 0 {
		return ""
	}

	units := 0

	for i, r := range s {
		runeUnits := 1
		if r > 0xFFFF {
			runeUnits = 2
		}

		if units+runeUnits > maxUnits {
			return s[:i]
		}

		units += runeUnits
	}

	return s
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n])
}

// Ellipsize shortens s to at most n runes, replacing the tail with Ellipsis.
func Ellipsize(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	keep := n - len(Ellipsis)
	if keep <= 0 {
		return Truncate(s, n)
	}

	return string(runes[:keep]) + Ellipsis
}

// Preview returns the first n runes of s followed by Ellipsis when s is longer.
func Preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n]) + Ellipsis
}

// FirstSentence returns the text before the first '.' and then before the
// first '?', trimmed and cut to maxRunes.
func FirstSentence(s string, maxRunes int) string {
	first, _, _ := strings.Cut(s, ".")
	first, _, _ = strings.Cut(first, "?")

	return Truncate(strings.TrimSpace(first), maxRunes)
}

// FirstSentences joins the first n '.'-separated non-empty sentences with ". " and cuts to maxRunes.
func FirstSentences(s string, n, maxRunes int) string {
	parts := strings.SplitN(s, ".", n+1)
	if len(parts) > n {
		parts = parts[:n]
	}

	kept := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}

	return Truncate(strings.Join(kept, ". "), maxRunes)
}
