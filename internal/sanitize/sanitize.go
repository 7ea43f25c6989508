// Package sanitize cleans user supplied text before it is persisted or shown
// to a model.
package sanitize

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text strips markup and control characters from s and collapses runs of
// whitespace into single spaces. The result is trimmed.
func Text(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			return ' '
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			return -1
		}
		return r
	}, s)
	// StrictPolicy escapes entities on output; undo that so "a & b" survives.
	s = html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// Title cleans s like Text and cuts it to at most n characters, preferring a
// word boundary.
func Title(s string, n int) string {
	s = Text(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	cut := string(r[:n])
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " .,;:-")
}
