// Package render produces output trees from matched templates. The template
// tree is only read; every rendered node is freshly allocated.
package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-protoconv/pkg/convctx"
	"github.com/goliatone/go-protoconv/pkg/document"
	"github.com/goliatone/go-protoconv/pkg/expr"
	"github.com/goliatone/go-protoconv/pkg/index"
	"github.com/goliatone/go-protoconv/pkg/template"
)

// DefaultMaxDepth bounds template nesting.
const DefaultMaxDepth = 64

// ArraySource supplies input elements for dynamic arrays.
type ArraySource interface {
	// Elements returns the input elements a dynamic array iterates. The
	// boolean is false when no corresponding input sequence exists.
	Elements(dyn index.DynamicArray) ([]*document.Node, bool)
	// ElementVariables returns variables scoped to one element. They take
	// precedence over regular variables while the element renders.
	ElementVariables(dyn index.DynamicArray, element *document.Node) map[string]any
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithMaxDepth overrides the nesting limit.
func WithMaxDepth(depth int) Option {
	return func(r *Renderer) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// Renderer renders templates. It is safe for concurrent use once its
// registry is populated.
type Renderer struct {
	engine   *expr.Engine
	registry *Registry
	maxDepth int
}

// New builds a Renderer over an expression engine and a special-function
// registry.
func New(engine *expr.Engine, registry *Registry, options ...Option) *Renderer {
	if engine == nil {
		engine = expr.New()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	r := &Renderer{engine: engine, registry: registry, maxDepth: DefaultMaxDepth}
	for _, opt := range options {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Registry returns the injected special-function registry.
func (r *Renderer) Registry() *Registry { return r.registry }

// Request bundles the inputs of one render.
type Request struct {
	Template *template.Template
	Context  convctx.Context
	// Variables holds extracted regular variables.
	Variables map[string]any
	Arrays    ArraySource
}

// Result is a rendered tree plus non-fatal findings.
type Result struct {
	Root     *document.Node
	Warnings []string
}

// Render walks the template depth first. Dynamic arrays are expanded once per
// input element with a context derived for that element. On failure the
// returned Result has no Root but keeps the warnings gathered so far.
func (r *Renderer) Render(req Request) (*Result, error) {
	if req.Template == nil {
		return &Result{}, fmt.Errorf("render: template is required")
	}
	w := &walker{r: r, tpl: req.Template, arrays: req.Arrays, res: &Result{}}
	root, err := w.node(req.Template.Root, document.Path{}, req.Context, newScope(r, req.Variables))
	if err != nil {
		return w.res, err
	}
	w.res.Root = root
	return w.res, nil
}

type walker struct {
	r      *Renderer
	tpl    *template.Template
	arrays ArraySource
	res    *Result
}

// node renders one template node. tplPath addresses the node in the
// template (element wildcards included); ctx.CurrentPath addresses the
// output position.
func (w *walker) node(n *document.Node, tplPath document.Path, ctx convctx.Context, sc *scope) (*document.Node, error) {
	if ctx.Depth > w.r.maxDepth {
		return nil, &RenderError{Path: ctx.CurrentPath, Err: ErrTooDeep}
	}
	if n == nil {
		return document.Scalar(nil), nil
	}
	switch n.Kind {
	case document.KindMapping:
		out := &document.Node{Kind: document.KindMapping, Fields: make([]document.Field, 0, len(n.Fields))}
		for _, field := range n.Fields {
			seg := document.Segment{Kind: document.SegmentKey, Key: field.Key}
			value, err := w.node(field.Value, tplPath.Key(field.Key), ctx.Descend(seg), sc)
			if err != nil {
				return nil, err
			}
			out.Fields = append(out.Fields, document.Field{Key: field.Key, Value: value})
		}
		return out, nil
	case document.KindSequence:
		if dyn, ok := w.tpl.Shape.DynamicAt(tplPath); ok {
			return w.dynamic(dyn, ctx, sc)
		}
		out := &document.Node{Kind: document.KindSequence, Items: make([]*document.Node, 0, len(n.Items))}
		for i, item := range n.Items {
			seg := document.Segment{Kind: document.SegmentIndex, Index: i}
			value, err := w.node(item, tplPath.At(i), ctx.Descend(seg), sc)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, value)
		}
		return out, nil
	default:
		return w.scalar(n, ctx, sc)
	}
}

func (w *walker) dynamic(dyn index.DynamicArray, ctx convctx.Context, sc *scope) (*document.Node, error) {
	out := &document.Node{Kind: document.KindSequence, Items: []*document.Node{}}
	if w.arrays == nil {
		w.res.Warnings = append(w.res.Warnings, fmt.Sprintf("render: %s: no input array source, rendered empty", ctx.CurrentPath))
		return out, nil
	}
	elements, ok := w.arrays.Elements(dyn)
	if !ok {
		w.res.Warnings = append(w.res.Warnings, fmt.Sprintf("render: %s: no corresponding input array, rendered empty", ctx.CurrentPath))
		return out, nil
	}
	total := len(elements)
	out.Items = make([]*document.Node, 0, total)
	for i, element := range elements {
		ectx := ctx.ForElement(ctx.CurrentPath, i, total, element)
		esc := sc.withElement(w.arrays.ElementVariables(dyn, element))
		value, err := w.node(dyn.Element, dyn.Path.Element(), ectx, esc)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, value)
	}
	return out, nil
}

func (w *walker) scalar(n *document.Node, ctx convctx.Context, sc *scope) (*document.Node, error) {
	program, ok := w.tpl.Program(n)
	if !ok {
		return &document.Node{Kind: document.KindScalar, Value: n.Value}, nil
	}
	text, err := w.r.engine.Evaluate(program, sc.at(ctx))
	if err != nil {
		var renderErr *RenderError
		if errors.As(err, &renderErr) {
			return nil, renderErr
		}
		return nil, &RenderError{Path: ctx.CurrentPath, Err: err}
	}
	return document.Scalar(text), nil
}

// scope resolves variables for expression evaluation. Element values
// shadow regular values.
type scope struct {
	r       *Renderer
	vars    map[string]any
	element map[string]any
	ctx     convctx.Context
}

func newScope(r *Renderer, vars map[string]any) *scope {
	return &scope{r: r, vars: vars}
}

func (s *scope) withElement(values map[string]any) *scope {
	return &scope{r: s.r, vars: s.vars, element: values}
}

func (s *scope) at(ctx convctx.Context) *scope {
	return &scope{r: s.r, vars: s.vars, element: s.element, ctx: ctx}
}

// Value implements expr.Scope.
func (s *scope) Value(name string) (any, bool, error) {
	prefix := s.r.engine.SpecialPrefix()
	if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
		value, err := s.r.invoke(strings.TrimPrefix(name, prefix), s.ctx)
		if err != nil {
			return nil, false, &RenderError{Path: s.ctx.CurrentPath, Variable: name, Err: err}
		}
		return value, true, nil
	}
	if v, ok := s.element[name]; ok {
		return v, true, nil
	}
	v, ok := s.vars[name]
	return v, ok, nil
}

// Variables implements expr.Scope.
func (s *scope) Variables() map[string]any {
	if len(s.element) == 0 {
		return s.vars
	}
	out := make(map[string]any, len(s.vars)+len(s.element))
	for k, v := range s.vars {
		out[k] = v
	}
	for k, v := range s.element {
		out[k] = v
	}
	return out
}

// invoke calls a special function, converting panics and non-string results
// into errors.
func (r *Renderer) invoke(key string, ctx convctx.Context) (result string, err error) {
	fn, err := r.registry.Get(key)
	if err != nil {
		return "", err
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("render: special function %q panicked: %v", key, rec)
		}
	}()
	value, err := fn(ctx)
	if err != nil {
		return "", fmt.Errorf("render: special function %q: %w", key, err)
	}
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%w: %q returned %T", ErrNotString, key, value)
	}
}
