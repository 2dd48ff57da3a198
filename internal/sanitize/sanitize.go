package sanitize

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const maxUsernameLength = 24

var textPolicy = bluemonday.StrictPolicy()

// Text reduces server-provided content to plain printable text: markup is
// stripped, entities are decoded and control characters are dropped so
// nothing can drive the terminal.
func Text(s string) string {
	if s == "" {
		return ""
	}
	decoded := html.UnescapeString(s)
	stripped := html.UnescapeString(textPolicy.Sanitize(decoded))
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, stripped))
}

// Username sanitises a display name and caps its length. It may return "".
func Username(s string) string {
	out := Text(s)
	if utf8.RuneCountInString(out) > maxUsernameLength {
		out = string([]rune(out)[:maxUsernameLength])
	}
	return out
}
