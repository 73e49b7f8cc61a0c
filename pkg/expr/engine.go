package expr

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/flosch/pongo2/v6"
	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-protoconv/pkg/document"
	"github.com/goliatone/go-protoconv/pkg/guard"
)

// ErrUnknownFilter reports a filter name no template engine knows.
var ErrUnknownFilter = errors.New("expr: unknown filter")

// Option configures an Engine.
type Option func(*Engine)

// WithSpecialPrefix overrides the prefix identifying special variables.
func WithSpecialPrefix(prefix string) Option {
	return func(e *Engine) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			e.specialPrefix = prefix
		}
	}
}

// Engine compiles template scalars and evaluates them. Compilation happens at
// load time; evaluation is safe for concurrent use.
type Engine struct {
	mu            sync.Mutex
	set           *pongo2.TemplateSet
	specialPrefix string
}

// New constructs an Engine backed by a dedicated pongo2 template set. The
// trim, capitalize and sanitize filters live in pongo2's global filter table
// under the protoconv_ prefix and are registered once per process; template
// text keeps using the short names.
func New(options ...Option) *Engine {
	e := &Engine{
		set:           pongo2.NewSet("protoconv", pongo2.DefaultLoader),
		specialPrefix: DefaultSpecialPrefix,
	}
	for _, opt := range options {
		if opt != nil {
			opt(e)
		}
	}
	registerDefaultFilters()
	return e
}

// SpecialPrefix reports the prefix used for special variables.
func (e *Engine) SpecialPrefix() string { return e.specialPrefix }

// Segment is a literal run or a reference inside a scalar.
type Segment struct {
	Literal string
	Ref     *Reference
}

// Program is a compiled template scalar.
type Program struct {
	Source string
	// Segments splits Source into literals and references. It is only used
	// when the program is evaluated without pongo2.
	Segments []Segment
	// Refs lists every {{ }} reference in order of appearance.
	Refs []Reference
	// Specials lists special variable names (with prefix) referenced anywhere
	// in Source, including statements.
	Specials []string

	tpl *pongo2.Template
}

// IsLiteral reports whether the scalar has no embedded expressions.
func (p *Program) IsLiteral() bool {
	return p.tpl == nil && len(p.Refs) == 0
}

// Pure returns the single reference when the scalar is exactly one simple
// reference with no surrounding text.
func (p *Program) Pure() (Reference, bool) {
	if p.tpl != nil || len(p.Segments) != 1 || p.Segments[0].Ref == nil {
		return Reference{}, false
	}
	return *p.Segments[0].Ref, true
}

// UsesEngine reports whether evaluation goes through pongo2.
func (p *Program) UsesEngine() bool { return p.tpl != nil }

// CompileError reports a scalar pongo2 could not parse.
type CompileError struct {
	Source string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("expr: compile %q: %v", e.Source, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Compile analyses a scalar. Scalars made of literals and simple references
// are evaluated directly; statements, comments and complex expressions are
// translated to pongo2 syntax and compiled.
func (e *Engine) Compile(text string) (*Program, error) {
	p := &Program{Source: text}
	spans := guard.ScanExpressions(text)
	if len(spans) == 0 {
		if text != "" {
			p.Segments = []Segment{{Literal: text}}
		}
		return p, nil
	}

	needsEngine := false
	last := 0
	for _, span := range spans {
		if span.Kind != guard.Expression {
			needsEngine = true
		}
		if span.Start > last {
			p.Segments = append(p.Segments, Segment{Literal: text[last:span.Start]})
		}
		last = span.End
		if span.Kind != guard.Expression {
			continue
		}
		ref := ParseReference(span.Text(text), e.specialPrefix)
		if !ref.Simple {
			needsEngine = true
		}
		p.Refs = append(p.Refs, ref)
		refCopy := ref
		p.Segments = append(p.Segments, Segment{Ref: &refCopy})
	}
	if last < len(text) {
		p.Segments = append(p.Segments, Segment{Literal: text[last:]})
	}

	for _, span := range spans {
		if span.Kind == guard.Comment {
			continue
		}
		for _, ident := range identifiers(span.Inner(text)) {
			if strings.HasPrefix(ident, e.specialPrefix) && len(ident) > len(e.specialPrefix) && !containsString(p.Specials, ident) {
				p.Specials = append(p.Specials, ident)
			}
		}
	}

	if !needsEngine {
		return p, nil
	}

	source := "{% autoescape off %}" + Translate(text) + "{% endautoescape %}"
	e.mu.Lock()
	tpl, err := e.set.FromString(source)
	e.mu.Unlock()
	if err != nil {
		return nil, &CompileError{Source: text, Err: err}
	}
	p.tpl = tpl
	p.Segments = nil
	return p, nil
}

// Scope supplies values while a program is evaluated.
type Scope interface {
	// Value resolves one variable by its full name, special prefix included.
	Value(name string) (any, bool, error)
	// Variables returns every regular variable in scope.
	Variables() map[string]any
}

// Evaluate renders a compiled program against scope.
func (e *Engine) Evaluate(p *Program, scope Scope) (string, error) {
	if p == nil {
		return "", nil
	}
	if p.tpl != nil {
		return e.evaluateTemplate(p, scope)
	}
	var b strings.Builder
	for _, seg := range p.Segments {
		if seg.Ref == nil {
			b.WriteString(seg.Literal)
			continue
		}
		value, _, err := scope.Value(seg.Ref.Name)
		if err != nil {
			return "", err
		}
		out, err := e.ApplyFilters(value, seg.Ref.Filters)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}
	return b.String(), nil
}

func (e *Engine) evaluateTemplate(p *Program, scope Scope) (string, error) {
	ctx := pongo2.Context{}
	for name, value := range scope.Variables() {
		ctx[name] = contextValue(value)
	}
	for _, name := range p.Specials {
		value, ok, err := scope.Value(name)
		if err != nil {
			return "", err
		}
		if ok {
			ctx[name] = contextValue(value)
		}
	}
	out, err := p.tpl.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("expr: evaluate %q: %w", p.Source, err)
	}
	return out, nil
}

// contextValue adapts scalar values for pongo2, which formats floats with a
// fixed six-digit precision.
func contextValue(value any) any {
	switch v := value.(type) {
	case float64:
		return document.FormatScalar(v)
	case *document.Node:
		return contextValue(v.Interface())
	default:
		return v
	}
}

// ApplyFilters converts value to its string form and runs the filters left to
// right.
func (e *Engine) ApplyFilters(value any, filters []Filter) (string, error) {
	var current *pongo2.Value
	switch v := value.(type) {
	case nil:
		current = pongo2.AsValue("")
	case string:
		current = pongo2.AsValue(v)
	default:
		current = pongo2.AsValue(document.FormatScalar(v))
	}
	for _, f := range filters {
		name := filterName(f.Name)
		if !pongo2.FilterExists(name) {
			return "", fmt.Errorf("%w %q", ErrUnknownFilter, f.Name)
		}
		param := pongo2.AsValue(f.argValue())
		next, perr := pongo2.ApplyFilter(name, current, param)
		if perr != nil {
			return "", fmt.Errorf("expr: filter %q: %w", f.Name, perr)
		}
		current = next
	}
	return valueString(current), nil
}

func valueString(v *pongo2.Value) string {
	if v == nil || v.IsNil() {
		return ""
	}
	if v.IsFloat() {
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	}
	return v.String()
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

var (
	filtersOnce     sync.Once
	sanitizerOnce   sync.Once
	sanitizerPolicy *bluemonday.Policy
)

// builtinFilterPrefix namespaces the filters this package adds to pongo2's
// process-wide filter table, so other pongo2 users in the same process never
// see them under the short names.
const builtinFilterPrefix = "protoconv_"

var builtinFilters = map[string]pongo2.FilterFunction{
	"trim":       filterTrim,
	"capitalize": filterCapitalize,
	"sanitize":   filterSanitize,
}

// filterName maps a template filter name onto its registered pongo2 name.
func filterName(name string) string {
	if _, ok := builtinFilters[name]; ok {
		return builtinFilterPrefix + name
	}
	return name
}

func registerDefaultFilters() {
	filtersOnce.Do(func() {
		for name, fn := range builtinFilters {
			if !pongo2.FilterExists(builtinFilterPrefix + name) {
				_ = pongo2.RegisterFilter(builtinFilterPrefix+name, fn)
			}
		}
	})
}

func filterTrim(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	if in.Len() <= 0 {
		return pongo2.AsValue(""), nil
	}
	return pongo2.AsValue(strings.TrimSpace(in.String())), nil
}

// filterCapitalize upper-cases the first rune and lower-cases the rest.
func filterCapitalize(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	s := in.String()
	if s == "" {
		return pongo2.AsValue(""), nil
	}
	r, size := utf8.DecodeRuneInString(s)
	return pongo2.AsValue(string(unicode.ToUpper(r)) + strings.ToLower(s[size:])), nil
}

// filterSanitize strips markup and returns plain text.
func filterSanitize(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	raw := strings.TrimSpace(in.String())
	if raw == "" {
		return pongo2.AsValue(""), nil
	}
	cleaned := html.UnescapeString(sanitizer().Sanitize(raw))
	return pongo2.AsValue(strings.TrimSpace(cleaned)), nil
}

func sanitizer() *bluemonday.Policy {
	sanitizerOnce.Do(func() {
		sanitizerPolicy = bluemonday.StrictPolicy()
	})
	return sanitizerPolicy
}

// RegisterFilter adds a custom filter usable from every template. Names that
// already exist are rejected.
func RegisterFilter(name string, fn func(input string, param any) (string, error)) error {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		return errors.New("expr: filter name and function required")
	}
	if _, builtin := builtinFilters[name]; builtin || pongo2.FilterExists(name) {
		return fmt.Errorf("expr: filter %q already exists", name)
	}
	return pongo2.RegisterFilter(name, func(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
		var paramVal any
		if param != nil {
			paramVal = param.Interface()
		}
		out, err := fn(in.String(), paramVal)
		if err != nil {
			return nil, &pongo2.Error{Sender: "filter:" + name, OrigError: err}
		}
		return pongo2.AsValue(out), nil
	})
}
