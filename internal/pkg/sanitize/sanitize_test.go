package sanitize

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var forbidden = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]|\n{3,}`)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain", in: "hello world", want: "hello world"},
		{name: "control chars", in: "a\x00\x01b\x1Fc", want: "a b c"},
		{name: "tabs and spaces", in: "a \t\t  b", want: "a b"},
		{name: "many newlines", in: "a\n\n\n\n\nb", want: "a\n\nb"},
		{name: "two newlines kept", in: "a\n\nb", want: "a\n\nb"},
		{name: "crlf", in: "a\r\nb\rc", want: "a\nb\nc"},
		{name: "trim", in: "  \n hi \n\t ", want: "hi"},
		{name: "invalid utf8", in: "ok\xffok", want: "ok�ok"},
		{name: "pdf junk", in: "%PDF\x00\x00\x07stream\x0b\x0cend", want: "%PDF stream end"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitizeProperties(t *testing.T) {
	inputs := []string{
		"",
		"\x00",
		"\n\n\n",
		" \n \n \n ",
		"a\r\n\r\n\r\nb",
		"\t\x0b\x0c\x0e\x1f\x7f x",
		strings.Repeat("ab\n\x01 \t", 200),
		"日本語\x00テキスト\n\n\n\n終",
		"\xc3\x28 broken \xa0\xa1",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		require.False(t, forbidden.MatchString(once), "input %q produced %q", in, once)
		require.Equal(t, once, Sanitize(once), "not idempotent for %q", in)
		require.Equal(t, strings.TrimSpace(once), once)
	}
}

type brokenStringer struct{}

func (brokenStringer) String() string {
	panic("boom")
}

type namedStringer struct{}

func (namedStringer) String() string {
	return "  named\x00value "
}

func TestSanitizeValue(t *testing.T) {
	require.Equal(t, "", SanitizeValue(nil))
	require.Equal(t, "abc", SanitizeValue(" abc "))
	require.Equal(t, "a b", SanitizeValue([]byte("a\x00b")))
	require.Equal(t, "42", SanitizeValue(42))
	require.Equal(t, "named value", SanitizeValue(namedStringer{}))
	require.Equal(t, "bad thing", SanitizeValue(errors.New("bad\tthing")))
	require.Equal(t, "", SanitizeValue(brokenStringer{}))
	var nilStringer *namedStringer
	require.NotPanics(t, func() { _ = SanitizeValue(nilStringer) })
}
