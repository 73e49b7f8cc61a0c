package guard

import (
	"strings"
	"unicode/utf8"
)

// MarkerKind identifies the delimiter pair of an embedded expression.
type MarkerKind uint8

const (
	// Expression is a {{ ... }} output expression.
	Expression MarkerKind = iota + 1
	// Statement is a {% ... %} control statement.
	Statement
	// Comment is a {# ... #} comment, used for dynamic-array markers.
	Comment
)

func (k MarkerKind) open() string {
	switch k {
	case Statement:
		return "{%"
	case Comment:
		return "{#"
	default:
		return "{{"
	}
}

func (k MarkerKind) close() string {
	switch k {
	case Statement:
		return "%}"
	case Comment:
		return "#}"
	default:
		return "}}"
	}
}

func (k MarkerKind) String() string {
	switch k {
	case Expression:
		return "expression"
	case Statement:
		return "statement"
	case Comment:
		return "comment"
	default:
		return "unknown"
	}
}

// Span locates one closed embedded expression inside a text. Start and End
// are byte offsets; End is exclusive and includes the closing delimiter.
type Span struct {
	Kind   MarkerKind
	Start  int
	End    int
	Line   int
	Column int
}

// Text returns the full expression text including delimiters.
func (s Span) Text(src string) string { return src[s.Start:s.End] }

// Inner returns the trimmed text between the delimiters.
func (s Span) Inner(src string) string {
	return strings.TrimSpace(src[s.Start+2 : s.End-2])
}

// Warning is a non-fatal finding reported while scanning.
type Warning struct {
	Line    int
	Column  int
	Message string
}

func (w Warning) String() string {
	return positionPrefix(w.Line, w.Column) + w.Message
}

// ScanResult is the outcome of scanning a text for embedded expressions.
type ScanResult struct {
	Spans    []Span
	Opening  int
	Closing  int
	Warnings []Warning
}

// Balanced reports whether opening and closing marker totals agree.
func (r ScanResult) Balanced() bool { return r.Opening == r.Closing }

// Scan finds embedded expressions in text. Brace nesting and quoted strings
// inside an expression are tracked so that a closing delimiter only ends the
// expression at depth zero. An expression still open when its line ends is
// reported as unclosed and left in place; scanning resumes after its opener.
// Closing delimiters found outside any expression are counted as stray closers.
func Scan(text string) ScanResult {
	var res ScanResult
	lines := newLineTracker(text)
	i := 0
	for i < len(text) {
		if kind := openerAt(text, i); kind != 0 {
			res.Opening++
			end, ok := scanExpression(text, i, kind)
			line, col := lines.position(i)
			if !ok {
				res.Warnings = append(res.Warnings, Warning{
					Line:    line,
					Column:  col,
					Message: "unclosed expression " + quoteSnippet(text[i:end]),
				})
				i += 2
				continue
			}
			res.Closing++
			res.Spans = append(res.Spans, Span{Kind: kind, Start: i, End: end, Line: line, Column: col})
			i = end
			continue
		}
		if closerAt(text, i) {
			res.Closing++
			i += 2
			continue
		}
		i++
	}
	return res
}

// ScanExpressions is Scan restricted to closed expression spans.
func ScanExpressions(text string) []Span {
	return Scan(text).Spans
}

func openerAt(text string, i int) MarkerKind {
	if i+1 >= len(text) || text[i] != '{' {
		return 0
	}
	switch text[i+1] {
	case '{':
		return Expression
	case '%':
		return Statement
	case '#':
		return Comment
	}
	return 0
}

func closerAt(text string, i int) bool {
	if i+1 >= len(text) || text[i+1] != '}' {
		return false
	}
	switch text[i] {
	case '}', '%', '#':
		return true
	}
	return false
}

// scanExpression returns the end offset of the expression opened at start and
// whether it was closed. When unclosed, end marks where the scan stopped.
func scanExpression(text string, start int, kind MarkerKind) (int, bool) {
	closer := kind.close()
	depth := 0
	var quote byte
	i := start + 2
	for i < len(text) {
		c := text[i]
		if c == '\n' {
			return i, false
		}
		if c == '\\' && i+1 < len(text) && text[i+1] != '\n' {
			i += 2
			continue
		}
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			i++
			continue
		}
		if depth == 0 && strings.HasPrefix(text[i:], closer) {
			return i + len(closer), true
		}
		switch c {
		case '"', '\'':
			if kind != Comment {
				quote = c
			}
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}
		i++
	}
	return len(text), false
}

type lineTracker struct {
	text   string
	starts []int
}

func newLineTracker(text string) lineTracker {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return lineTracker{text: text, starts: starts}
}

// position returns the 1-based line and rune column of offset.
func (l lineTracker) position(offset int) (int, int) {
	lo, hi := 0, len(l.starts)
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if l.starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo + 1, utf8.RuneCountInString(l.text[l.starts[lo]:offset]) + 1
}

func quoteSnippet(s string) string {
	const limit = 40
	if utf8.RuneCountInString(s) > limit {
		runes := []rune(s)
		s = string(runes[:limit]) + "..."
	}
	return "\"" + s + "\""
}
