package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	controlRegex    = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]+`)
	horizontalRegex = regexp.MustCompile(`[ \t]+`)
	newlineRegex    = regexp.MustCompile(`\n{3,}`)
)

// Sanitize strips control characters and normalizes whitespace.
// It never fails and Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToValidUTF8(text, "�")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = controlRegex.ReplaceAllString(text, " ")
	text = horizontalRegex.ReplaceAllString(text, " ")
	text = newlineRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// SanitizeValue coerces v to a string before sanitizing it. A value whose
// string conversion panics yields "".
func SanitizeValue(v interface{}) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = ""
		}
	}()
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return Sanitize(val)
	case []byte:
		return Sanitize(string(val))
	case fmt.Stringer:
		return Sanitize(val.String())
	case error:
		return Sanitize(val.Error())
	default:
		return Sanitize(fmt.Sprint(val))
	}
}
