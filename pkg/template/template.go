// Package template turns raw template text into immutable ProtocolTemplates:
// expressions are guarded, the text is parsed, placeholders are restored and
// the tree is analysed into its shape, variable map and compiled scalars.
package template

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-protoconv/pkg/document"
	"github.com/goliatone/go-protoconv/pkg/expr"
	"github.com/goliatone/go-protoconv/pkg/guard"
	"github.com/goliatone/go-protoconv/pkg/index"
)

// Template is a loaded protocol template. It is read-only once built and may
// be shared across concurrent conversions.
type Template struct {
	ID     string
	Family string
	// Root is the restored template tree.
	Root  *document.Node
	Shape *index.Shape
	// Variables maps variable names to their template paths.
	Variables VariableMap
	// Placeholders maps guard tokens to the original expression text.
	Placeholders map[string]string
	// Warnings collects non-fatal findings from guarding and analysis.
	Warnings []string

	programs map[*document.Node]*expr.Program
}

// Program returns the compiled program for a scalar node of Root.
func (t *Template) Program(node *document.Node) (*expr.Program, bool) {
	p, ok := t.programs[node]
	return p, ok
}

// NodeAt returns the template node at path. An element wildcard steps into
// the element template of the dynamic array at that position.
func (t *Template) NodeAt(path document.Path) (*document.Node, bool) {
	current := t.Root
	for i, seg := range path {
		if current == nil {
			return nil, false
		}
		var ok bool
		switch seg.Kind {
		case document.SegmentKey:
			current, ok = current.Get(seg.Key)
		case document.SegmentIndex:
			current, ok = current.Index(seg.Index)
		case document.SegmentElement:
			var dyn index.DynamicArray
			dyn, ok = t.Shape.DynamicAt(path[:i])
			current = dyn.Element
		}
		if !ok {
			return nil, false
		}
	}
	return current, current != nil
}

// ProgramAt returns the compiled program of the scalar at path.
func (t *Template) ProgramAt(path document.Path) (*expr.Program, bool) {
	node, ok := t.NodeAt(path)
	if !ok {
		return nil, false
	}
	return t.Program(node)
}

// Option configures template construction.
type Option func(*builder)

// WithFamily overrides the family derived from the id.
func WithFamily(family string) Option {
	return func(b *builder) {
		if family = strings.TrimSpace(family); family != "" {
			b.family = family
		}
	}
}

// WithEngine sets the expression engine used to compile scalars.
func WithEngine(engine *expr.Engine) Option {
	return func(b *builder) {
		if engine != nil {
			b.engine = engine
		}
	}
}

type builder struct {
	family string
	engine *expr.Engine
}

// Parse builds a Template from raw text. Marker mismatches surface as
// *guard.SyntaxError, grammar failures as *StructuralParseError and any other
// problem as *LoadError.
func Parse(id string, raw []byte, options ...Option) (*Template, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("template: id is required")
	}
	b := &builder{family: FamilyOf(id)}
	for _, opt := range options {
		if opt != nil {
			opt(b)
		}
	}
	if b.engine == nil {
		b.engine = expr.New()
	}

	text := string(raw)
	protected, err := guard.Protect(text)
	if err != nil {
		return nil, err
	}

	tree, err := document.DecodeYAML([]byte(protected.Text))
	if err != nil {
		return nil, structuralError(id, protected.Text, err)
	}
	if !tree.IsMapping() {
		return nil, &StructuralParseError{
			TemplateID: id,
			Line:       tree.Line,
			Column:     tree.Column,
			Message:    fmt.Sprintf("template root must be a mapping, found %s", rootDescription(tree)),
		}
	}
	protected.Restore(tree)

	shape, err := index.Analyze(tree)
	if err != nil {
		return nil, &LoadError{TemplateID: id, Err: err}
	}

	t := &Template{
		ID:           id,
		Family:       b.family,
		Root:         tree,
		Shape:        shape,
		Variables:    newVariableMap(),
		Placeholders: protected.Tokens,
		programs:     map[*document.Node]*expr.Program{},
	}
	for _, w := range protected.Warnings {
		t.Warnings = append(t.Warnings, w.String())
	}
	t.Warnings = append(t.Warnings, shape.Warnings...)

	if err := t.compile(b.engine, document.Path{}, tree); err != nil {
		return nil, &LoadError{TemplateID: id, Err: err}
	}
	return t, nil
}

func rootDescription(n *document.Node) string {
	if n.IsSequence() {
		return "a sequence item marker with no enclosing key"
	}
	if n.IsNull() {
		return "an empty document"
	}
	return n.Kind.String()
}

// compile walks the tree the way the shape does, compiling every scalar with
// expressions and recording variable references against their paths.
func (t *Template) compile(engine *expr.Engine, path document.Path, node *document.Node) error {
	switch node.Kind {
	case document.KindMapping:
		for _, field := range node.Fields {
			if err := t.compile(engine, path.Key(field.Key), field.Value); err != nil {
				return err
			}
		}
	case document.KindSequence:
		if dyn, ok := t.Shape.DynamicAt(path); ok {
			return t.compile(engine, path.Element(), dyn.Element)
		}
		for i, item := range node.Items {
			if err := t.compile(engine, path.At(i), item); err != nil {
				return err
			}
		}
	case document.KindScalar:
		text, ok := node.Value.(string)
		if !ok {
			return nil
		}
		program, err := engine.Compile(text)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if program.IsLiteral() {
			return nil
		}
		t.programs[node] = program
		for _, ref := range program.Refs {
			if ref.Name == "" || (!ref.Simple && !ref.Special) {
				continue
			}
			t.Variables.add(ref, path)
		}
		for _, name := range program.Specials {
			t.Variables.add(expr.ParseReference("{{ "+name+" }}", engine.SpecialPrefix()), path)
		}
	}
	return nil
}
