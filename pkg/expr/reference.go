// Package expr parses and evaluates the expressions embedded in template
// scalars. Plain references with a filter chain are evaluated directly; any
// scalar carrying statements or richer expressions is compiled with pongo2.
package expr

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultSpecialPrefix marks variables resolved by registered functions.
const DefaultSpecialPrefix = "__"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`)

// Filter is one step of a reference's filter chain.
type Filter struct {
	Name string
	// Arg is the literal argument, unquoted.
	Arg string
	// HasArg distinguishes an empty argument from no argument.
	HasArg bool
	// Quoted reports whether Arg was a string literal.
	Quoted bool
}

// Reference is a parsed {{ ... }} expression.
type Reference struct {
	// Raw is the full expression including delimiters.
	Raw string
	// Source is the trimmed text between the delimiters.
	Source string
	// Name is the leading identifier; empty for literals.
	Name string
	// Key is Name without the special prefix.
	Key     string
	Special bool
	Filters []Filter
	// Simple is true when the expression is only Name plus filters.
	Simple bool
}

// ParseReference parses the expression text raw, which must include its
// {{ }} delimiters.
func ParseReference(raw, specialPrefix string) Reference {
	if specialPrefix == "" {
		specialPrefix = DefaultSpecialPrefix
	}
	ref := Reference{Raw: raw}
	inner := raw
	if strings.HasPrefix(inner, "{{") && strings.HasSuffix(inner, "}}") && len(inner) >= 4 {
		inner = inner[2 : len(inner)-2]
	}
	// Whitespace control markers ({{- x -}}) do not change the reference.
	inner = strings.TrimSpace(inner)
	inner = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(inner, "-"), "-"))
	ref.Source = inner

	name := identPattern.FindString(inner)
	if name == "" || isKeyword(name) {
		return ref
	}
	ref.Name = name
	ref.Key = name
	if strings.HasPrefix(name, specialPrefix) && len(name) > len(specialPrefix) {
		ref.Special = true
		ref.Key = strings.TrimPrefix(name, specialPrefix)
	}

	filters, ok := parseFilters(inner[len(name):])
	if ok {
		ref.Filters = filters
		ref.Simple = true
	}
	return ref
}

func isKeyword(name string) bool {
	switch name {
	case "true", "false", "True", "False", "none", "None", "nil", "not":
		return true
	}
	return false
}

func parseFilters(s string) ([]Filter, bool) {
	var out []Filter
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return out, true
		}
		if s[0] != '|' {
			return nil, false
		}
		s = strings.TrimLeft(s[1:], " \t")
		name := identPattern.FindString(s)
		if name == "" {
			return nil, false
		}
		s = s[len(name):]
		f := Filter{Name: name}
		trimmed := strings.TrimLeft(s, " \t")
		switch {
		case strings.HasPrefix(trimmed, "("):
			body := strings.TrimLeft(trimmed[1:], " \t")
			if strings.HasPrefix(body, ")") {
				s = body[1:]
				break
			}
			arg, quoted, rest, ok := parseLiteral(body)
			if !ok {
				return nil, false
			}
			rest = strings.TrimLeft(rest, " \t")
			if !strings.HasPrefix(rest, ")") {
				return nil, false
			}
			f.Arg, f.Quoted, f.HasArg = arg, quoted, true
			s = rest[1:]
		case strings.HasPrefix(trimmed, ":"):
			arg, quoted, rest, ok := parseLiteral(strings.TrimLeft(trimmed[1:], " \t"))
			if !ok {
				return nil, false
			}
			f.Arg, f.Quoted, f.HasArg = arg, quoted, true
			s = rest
		case len(trimmed) < len(s) && trimmed != "" && (trimmed[0] == '\'' || trimmed[0] == '"'):
			arg, quoted, rest, ok := parseLiteral(trimmed)
			if !ok {
				return nil, false
			}
			f.Arg, f.Quoted, f.HasArg = arg, quoted, true
			s = rest
		}
		out = append(out, f)
	}
}

var numberPattern = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?`)

// parseLiteral reads a quoted string or number at the start of s.
func parseLiteral(s string) (value string, quoted bool, rest string, ok bool) {
	if s == "" {
		return "", false, "", false
	}
	if q := s[0]; q == '\'' || q == '"' {
		var b strings.Builder
		for i := 1; i < len(s); i++ {
			c := s[i]
			if c == '\\' && i+1 < len(s) {
				b.WriteByte(s[i+1])
				i++
				continue
			}
			if c == q {
				return b.String(), true, s[i+1:], true
			}
			b.WriteByte(c)
		}
		return "", false, "", false
	}
	if num := numberPattern.FindString(s); num != "" {
		return num, false, s[len(num):], true
	}
	return "", false, "", false
}

// argValue converts a filter argument into the value handed to pongo2.
func (f Filter) argValue() any {
	if !f.HasArg {
		return nil
	}
	if f.Quoted {
		return f.Arg
	}
	if i, err := strconv.Atoi(f.Arg); err == nil {
		return i
	}
	if v, err := strconv.ParseFloat(f.Arg, 64); err == nil {
		return v
	}
	return f.Arg
}

var specialIdentPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// identifiers returns every identifier-like token in src outside quoted
// strings, in order of first appearance.
func identifiers(src string) []string {
	var out []string
	seen := map[string]bool{}
	var quote byte
	start := 0
	flush := func(end int) {
		for _, tok := range specialIdentPattern.FindAllString(src[start:end], -1) {
			if identPattern.MatchString(tok) && !seen[tok] {
				seen[tok] = true
				out = append(out, tok)
			}
		}
	}
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
				start = i + 1
			}
			continue
		}
		if c == '"' || c == '\'' {
			flush(i)
			quote = c
		}
	}
	if quote == 0 {
		flush(len(src))
	}
	return out
}
