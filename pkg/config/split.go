package config

import (
	"strings"
	"unicode"
)

// Quotes are the quote characters accepted around alias rules and lookup
// arguments.
const Quotes = `"'`

// SplitQuotedFields splits in into fields separated by white space or by any
// rune of seps. Text between a rune of quotes and the next occurrence of the
// same rune keeps its spaces and separators, a backslash inside quotes makes
// the following rune literal. A quoted empty string is an empty field, runs
// of separators do not produce empty fields.
func SplitQuotedFields(in, quotes, seps string) []string {
	var (
		r       []string
		field   strings.Builder
		started bool
		quote   rune
		escaped bool
	)
	flush := func() {
		if started {
			r = append(r, field.String())
			field.Reset()
			started = false
		}
	}

	for _, ch := range in {
		switch {
		case escaped:
			field.WriteRune(ch)
			escaped = false
		case quote != 0:
			switch ch {
			case quote:
				quote = 0
			case '\\':
				escaped = true
			default:
				field.WriteRune(ch)
			}
		case strings.ContainsRune(quotes, ch):
			quote, started = ch, true
		case unicode.IsSpace(ch) || strings.ContainsRune(seps, ch):
			flush()
		default:
			field.WriteRune(ch)
			started = true
		}
	}
	flush()
	return r
}
