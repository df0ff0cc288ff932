// Package words finds the censorable words of a story entry.
package words

import "strings"

// Range is a half-open [start, end) byte range into a piece of content.
// It encodes on the wire as a two element array.
type Range [2]int

func (r Range) Start() int { return r[0] }
func (r Range) End() int   { return r[1] }
func (r Range) Len() int   { return r[1] - r[0] }

func isWordStart(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func isWordPart(c byte) bool {
	return isWordStart(c) || c == '\''
}

// Ranges returns the ranges of every word in content, in order of appearance.
//
// A word starts at an ASCII letter or digit and continues over letters, digits
// and apostrophes. A trailing apostrophe is dropped from the word unless it
// follows an "s", so the possessive in "the words'" stays attached while the
// closing quote in "'a quote'" does not.
func Ranges(content string) []Range {
	var out []Range
	start := -1
	for i := 0; i < len(content); i++ {
		c := content[i]
		if start >= 0 {
			if isWordPart(c) {
				continue
			}
			out = append(out, closeRange(content, start, i))
			start = -1
			continue
		}
		if isWordStart(c) {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, closeRange(content, start, len(content)))
	}
	return out
}

func closeRange(content string, start, end int) Range {
	last, beforeLast := end-1, end-2
	if beforeLast >= start && content[last] == '\'' && content[beforeLast] != 's' {
		return Range{start, end - 1}
	}
	return Range{start, end}
}

// Count returns the number of words in content.
func Count(content string) int {
	return len(Ranges(content))
}

// Blank replaces every byte covered by ranges with a space.
func Blank(content string, ranges []Range) string {
	b := []byte(content)
	for _, r := range ranges {
		for i := r.Start(); i < r.End() && i < len(b); i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

// Substitute writes replacements[i] over ranges[i]. Ranges must be ascending
// and non-overlapping. It returns the new content and where each replacement
// landed in it.
func Substitute(content string, ranges []Range, replacements []string) (string, []Range) {
	var sb strings.Builder
	landed := make([]Range, 0, len(ranges))
	last := 0
	for i, r := range ranges {
		sb.WriteString(content[last:r.Start()])
		at := sb.Len()
		sb.WriteString(replacements[i])
		landed = append(landed, Range{at, sb.Len()})
		last = r.End()
	}
	sb.WriteString(content[last:])
	return sb.String(), landed
}

// ValidReplacements reports whether replacements fill exactly n censored words,
// each with a non-empty string holding a single word.
func ValidReplacements(n int, replacements []string) bool {
	if len(replacements) != n {
		return false
	}
	for _, r := range replacements {
		if r == "" || Count(r) != 1 {
			return false
		}
	}
	return true
}
