package query

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/efebarandurmaz/gloombot/internal/vector"
)

// BuildPrompt renders the user message sent to the completion API.
func BuildPrompt(input string, snippets []string) string {
	return fmt.Sprintf("User query: %s\n\nContext:\n%s\n\nPlease provide a concise and relevant answer based on this information.",
		input, ListLiteral(snippets))
}

// Flatten joins the per-query document rows of res into one ordered list.
func Flatten(res *vector.QueryResult) []string {
	if res == nil {
		return nil
	}
	var out []string
	for _, row := range res.Documents {
		out = append(out, row...)
	}
	return out
}

// ListLiteral renders items as a bracketed, comma separated list of quoted
// strings, e.g. ['a', "it's"]. A string is single-quoted unless it contains a
// single quote and no double quote. Backslashes, the quote character and
// non-printable runes are escaped.
func ListLiteral(items []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, s := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		writeQuoted(&b, s)
	}
	b.WriteByte(']')
	return b.String()
}

func writeQuoted(b *strings.Builder, s string) {
	quote := byte('\'')
	if strings.IndexByte(s, '\'') >= 0 && strings.IndexByte(s, '"') < 0 {
		quote = '"'
	}

	b.WriteByte(quote)
	for _, r := range s {
		switch {
		case r == rune(quote) || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case !unicode.IsPrint(r):
			switch {
			case r <= 0xff:
				fmt.Fprintf(b, `\x%02x`, r)
			case r <= 0xffff:
				fmt.Fprintf(b, `\u%04x`, r)
			default:
				fmt.Fprintf(b, `\U%08x`, r)
			}
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(quote)
}
