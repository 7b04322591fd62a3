package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var tokenPattern = regexp.MustCompile(`\p{L}+|\p{N}+`)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "its": {},
	"of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {},
	"were": {}, "what": {}, "which": {}, "who": {}, "will": {}, "with": {}, "how": {}, "does": {},
	"do": {}, "did": {}, "can": {}, "into": {}, "than": {}, "then": {}, "there": {}, "these": {},
}

// Tokenize lowercases text, keeps letter and digit runs, drops stopwords and
// strips a plural "s" from longer tokens.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, ok := stopwords[tok]; ok {
			continue
		}
		if utf8.RuneCountInString(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
			tok = tok[:len(tok)-1]
		}
		out = append(out, tok)
	}
	return out
}

// TokenSet returns the distinct tokens of text.
func TokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// Overlap is the share of distinct query tokens found in text, in [0, 1].
func Overlap(query []string, text string) float64 {
	if len(query) == 0 {
		return 0
	}
	distinct := make(map[string]struct{}, len(query))
	for _, q := range query {
		distinct[q] = struct{}{}
	}
	set := TokenSet(text)
	matched := 0
	for q := range distinct {
		if _, ok := set[q]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(distinct))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
