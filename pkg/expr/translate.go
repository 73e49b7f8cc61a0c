package expr

import (
	"strings"

	"github.com/goliatone/go-protoconv/pkg/guard"
)

// Translate rewrites Jinja-style filter arguments into the pongo2 form inside
// every expression and statement of text: f('x'), f("x") and f 'x' become
// f:"x". Filters this package provides are renamed to their registered names.
// Text outside expressions is left untouched.
func Translate(text string) string {
	spans := guard.ScanExpressions(text)
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, span := range spans {
		b.WriteString(text[last:span.Start])
		if span.Kind == guard.Comment {
			b.WriteString(span.Text(text))
		} else {
			inner := text[span.Start+2 : span.End-2]
			b.WriteString(text[span.Start : span.Start+2])
			b.WriteString(translateInner(inner))
			b.WriteString(text[span.End-2 : span.End])
		}
		last = span.End
	}
	b.WriteString(text[last:])
	return b.String()
}

func translateInner(src string) string {
	var b strings.Builder
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\'' || c == '"':
			lit, n, ok := readQuoted(src[i:])
			if !ok {
				b.WriteString(src[i:])
				return b.String()
			}
			b.WriteString(lit)
			i += n
		case c == '|':
			b.WriteByte('|')
			i++
			for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
				b.WriteByte(src[i])
				i++
			}
			name := identPattern.FindString(src[i:])
			b.WriteString(filterName(name))
			i += len(name)
			if name == "" {
				continue
			}
			i += rewriteFilterArg(src[i:], &b)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// rewriteFilterArg converts the argument following a filter name and returns
// the number of bytes consumed.
func rewriteFilterArg(rest string, b *strings.Builder) int {
	trimmed := strings.TrimLeft(rest, " \t")
	ws := len(rest) - len(trimmed)
	switch {
	case strings.HasPrefix(trimmed, "("):
		body := strings.TrimLeft(trimmed[1:], " \t")
		consumed := ws + 1 + (len(trimmed) - 1 - len(body))
		if strings.HasPrefix(body, ")") {
			return consumed + 1
		}
		arg, n := readArgument(body)
		after := strings.TrimLeft(body[n:], " \t")
		if !strings.HasPrefix(after, ")") {
			// Not a single-argument call; leave it for pongo2 to report.
			return 0
		}
		b.WriteByte(':')
		b.WriteString(arg)
		return consumed + n + (len(body[n:]) - len(after)) + 1
	case ws > 0 && trimmed != "" && (trimmed[0] == '\'' || trimmed[0] == '"'):
		lit, n, ok := readQuoted(trimmed)
		if !ok {
			return 0
		}
		b.WriteByte(':')
		b.WriteString(lit)
		return ws + n
	}
	return 0
}

// readArgument reads one filter argument: a quoted literal or a bare token.
func readArgument(s string) (string, int) {
	if s != "" && (s[0] == '\'' || s[0] == '"') {
		if lit, n, ok := readQuoted(s); ok {
			return lit, n
		}
	}
	n := 0
	for n < len(s) && s[n] != ')' && s[n] != ' ' && s[n] != '\t' && s[n] != ',' {
		n++
	}
	return s[:n], n
}

// readQuoted reads a quoted literal at the start of s and returns it
// re-quoted with double quotes.
func readQuoted(s string) (string, int, bool) {
	q := s[0]
	var b strings.Builder
	b.WriteByte('"')
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			if s[i+1] == q && q == '\'' {
				b.WriteByte('\'')
			} else {
				b.WriteByte(c)
				b.WriteByte(s[i+1])
			}
			i++
			continue
		}
		if c == q {
			b.WriteByte('"')
			return b.String(), i + 1, true
		}
		if c == '"' {
			b.WriteString(`\"`)
			continue
		}
		b.WriteByte(c)
	}
	return "", 0, false
}
