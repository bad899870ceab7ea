// Package querytext escapes free text for the classic Lucene query syntax and
// parses escaped text back into its literal form.
package querytext

import (
	"fmt"
	"strings"
)

// Reserved holds the characters with syntactic meaning in the classic
// query syntax.
const Reserved = `\+-!():^[]"{}~*?|&/`

// elasticReserved adds query_string's extra operator character.
const elasticReserved = Reserved + "="

// elasticDropped cannot be escaped inside query_string at all.
const elasticDropped = "<>"

// SyntaxError reports an unescaped operator in text that was expected to
// be literal.
type SyntaxError struct {
	Offset int
	Char   rune
	Msg    string
}

func (e *SyntaxError) Error() string {
	if e.Char == 0 {
		return fmt.Sprintf("offset %d: %s", e.Offset, e.Msg)
	}
	return fmt.Sprintf("offset %d: %s %q", e.Offset, e.Msg, e.Char)
}

// Escape prefixes every reserved character with a backslash.
func Escape(text string) string {
	return escape(text, Reserved, "")
}

// EscapeElastic escapes text for an Elasticsearch query_string query.
// Angle brackets are removed because they cannot be escaped there.
func EscapeElastic(text string) string {
	return escape(text, elasticReserved, elasticDropped)
}

func escape(text, reserved, dropped string) string {
	var sb strings.Builder
	sb.Grow(len(text) + len(text)/8)
	for _, r := range text {
		if strings.ContainsRune(dropped, r) {
			continue
		}
		if strings.ContainsRune(reserved, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Unescape parses escaped text back to its literal form. An unescaped
// reserved character or a trailing backslash is a syntax error.
func Unescape(query string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(query))

	escaped := false
	for i, r := range query {
		switch {
		case escaped:
			sb.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case strings.ContainsRune(Reserved, r):
			return "", &SyntaxError{Offset: i, Char: r, Msg: "unexpected operator"}
		default:
			sb.WriteRune(r)
		}
	}
	if escaped {
		return "", &SyntaxError{Offset: len(query), Msg: "dangling escape at end of query"}
	}
	return sb.String(), nil
}
