// Package guard shields embedded template expressions from the host YAML/JSON
// grammar. Expressions are swapped for inert placeholder tokens before the
// text is parsed and swapped back once the tree exists.
package guard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goliatone/go-protoconv/pkg/document"
)

const basePrefix = "__PROTOCONV_EXPR_"

// SyntaxError reports expression markers that cannot be paired.
type SyntaxError struct {
	Opening  int
	Closing  int
	Warnings []Warning
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("guard: mismatched expression markers: %d opening vs %d closing", e.Opening, e.Closing)
}

// Protected is guarded text together with the placeholder map needed to
// restore it. Tokens maps each placeholder to its original expression text;
// identical expressions share a token so the map is a bijection.
type Protected struct {
	Text     string
	Tokens   map[string]string
	Warnings []Warning
	Opening  int
	Closing  int

	prefix  string
	pattern *regexp.Regexp
}

// Protect replaces every closed expression in raw with a placeholder token.
// A mismatch between opening and closing marker totals is returned as a
// *SyntaxError; unclosed expressions on their own are warnings.
func Protect(raw string) (*Protected, error) {
	scan := Scan(raw)
	if !scan.Balanced() {
		return nil, &SyntaxError{Opening: scan.Opening, Closing: scan.Closing, Warnings: scan.Warnings}
	}

	prefix := choosePrefix(raw)
	p := &Protected{
		Tokens:   make(map[string]string, len(scan.Spans)),
		Warnings: scan.Warnings,
		Opening:  scan.Opening,
		Closing:  scan.Closing,
		prefix:   prefix,
		pattern:  tokenPattern(prefix),
	}

	byText := make(map[string]string, len(scan.Spans))
	var b strings.Builder
	b.Grow(len(raw))
	last := 0
	for _, span := range scan.Spans {
		original := span.Text(raw)
		token, ok := byText[original]
		if !ok {
			token = fmt.Sprintf("%s%04d__", prefix, len(byText)+1)
			byText[original] = token
			p.Tokens[token] = original
		}
		b.WriteString(raw[last:span.Start])
		b.WriteString(token)
		last = span.End
	}
	b.WriteString(raw[last:])
	p.Text = b.String()
	return p, nil
}

// choosePrefix picks a token prefix that does not already occur in raw.
func choosePrefix(raw string) string {
	prefix := basePrefix
	for salt := 1; strings.Contains(raw, prefix); salt++ {
		prefix = basePrefix + strconv.Itoa(salt) + "_"
	}
	return prefix
}

func tokenPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(prefix) + `[0-9]+__`)
}

// RestoreString substitutes every placeholder token in s with its original
// expression text.
func (p *Protected) RestoreString(s string) string {
	if p == nil || len(p.Tokens) == 0 || !strings.Contains(s, p.prefix) {
		return s
	}
	return p.pattern.ReplaceAllStringFunc(s, func(token string) string {
		if original, ok := p.Tokens[token]; ok {
			return original
		}
		return token
	})
}

// Restore walks tree in place, restoring placeholder tokens in string
// scalars, mapping keys and comments. It returns tree for chaining.
func (p *Protected) Restore(tree *document.Node) *document.Node {
	if p == nil || tree == nil {
		return tree
	}
	document.Walk(tree, func(_ document.Path, node *document.Node) bool {
		node.Comment = p.RestoreString(node.Comment)
		switch node.Kind {
		case document.KindScalar:
			if s, ok := node.Value.(string); ok {
				node.Value = p.RestoreString(s)
			}
		case document.KindMapping:
			for i := range node.Fields {
				node.Fields[i].Key = p.RestoreString(node.Fields[i].Key)
			}
		}
		return true
	})
	return tree
}

func positionPrefix(line, col int) string {
	if line <= 0 {
		return ""
	}
	return fmt.Sprintf("line %d column %d: ", line, col)
}
