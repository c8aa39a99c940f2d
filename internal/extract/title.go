// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// NormalizeTitle returns the comparison key for a title: lowercased, with
// everything but letters, digits, underscores and whitespace removed, and
// whitespace runs collapsed to a single space. Titles differing only by
// case, punctuation or spacing share a key. Punctuation is dropped before
// whitespace collapses, so "A - B" and "A B" share a key.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// cleanTitle turns raw anchor text into a display title. Entities are
// unescaped first because alert bodies sometimes carry escaped markup such
// as "&lt;i&gt;E. coli&lt;/i&gt;"; the result is then tokenized so only text
// survives.
func cleanTitle(raw string) string {
	unescaped := html.UnescapeString(raw)
	if !strings.ContainsRune(unescaped, '<') {
		return strings.Join(strings.Fields(unescaped), " ")
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(unescaped))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				// Malformed fragment: fall back to the unescaped text.
				return strings.Join(strings.Fields(unescaped), " ")
			}
			break
		}
		if tt == html.TextToken {
			b.Write(z.Text())
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
