// Package htmlsanitize cleans user-supplied chat text.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict removes every element. Script and style bodies are dropped with
// their tags.
var strict = bluemonday.StrictPolicy()

// maxPasses bounds how many layers of entity encoding are peeled off.
const maxPasses = 4

// PlainText strips all markup from s and returns the trimmed text with
// entities decoded, ready to store and relay as plain text.
//
// Decoding can surface markup that was entity-encoded in the input, so the
// strip/decode cycle repeats until the text is stable. Input still carrying
// markup after maxPasses yields "".
func PlainText(s string) string {
	out := s
	for i := 0; i < maxPasses && out != ""; i++ {
		next := html.UnescapeString(strict.Sanitize(out))
		if next == out {
			break
		}
		out = next
	}
	if !IsPlainText(out) {
		return ""
	}
	return strings.TrimSpace(out)
}

// IsPlainText reports whether s looks free of markup (no '<' followed
// later by '>').
func IsPlainText(s string) bool {
	i := strings.IndexByte(s, '<')
	return i < 0 || !strings.Contains(s[i:], ">")
}
