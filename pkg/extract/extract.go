// Package extract resolves a matched template's variables against an input
// document. Regular variables are read from their paths; special variables
// are only recorded, since their values depend on render-time position;
// variables inside dynamic arrays are resolved per element.
package extract

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-protoconv/pkg/document"
	"github.com/goliatone/go-protoconv/pkg/index"
	"github.com/goliatone/go-protoconv/pkg/template"
)

// Policy selects how an unresolved regular variable is handled.
type Policy string

const (
	// PolicyWarn records a warning and substitutes the configured default.
	PolicyWarn Policy = "warn"
	// PolicyFail aborts extraction with a *MissingVariableError.
	PolicyFail Policy = "fail"
)

// ParsePolicy accepts "warn", "fail" and the long forms "warn-and-default"
// and "hard-fail".
func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "warn", "warn-and-default":
		return PolicyWarn, nil
	case "fail", "hard-fail":
		return PolicyFail, nil
	}
	return "", fmt.Errorf("extract: unknown missing variable policy %q", raw)
}

// MissingVariableError reports a regular variable absent from the input.
type MissingVariableError struct {
	TemplateID string
	Variable   string
	Paths      []document.Path
}

func (e *MissingVariableError) Error() string {
	paths := make([]string, 0, len(e.Paths))
	for _, p := range e.Paths {
		paths = append(paths, p.String())
	}
	return fmt.Sprintf("extract: template %s: variable %q not found at %s", e.TemplateID, e.Variable, strings.Join(paths, ", "))
}

// ArrayScope groups the variables resolved per element of a dynamic array.
type ArrayScope struct {
	// Path is the dynamic array's path in the template, which is also
	// where the input sequence is expected.
	Path      document.Path
	Variables []string
}

// Extraction is the outcome of resolving one template against one input.
type Extraction struct {
	// Values holds resolved regular variables by name.
	Values map[string]any
	// Specials lists special variable names, prefix included.
	Specials []string
	Arrays   []ArrayScope
	// Missing lists regular variables replaced by the default.
	Missing  []string
	Warnings []string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPolicy sets the missing-variable policy. Long forms such as
// "hard-fail" are normalised; unknown values keep the current policy.
func WithPolicy(p Policy) Option {
	return func(e *Extractor) {
		if p == "" {
			return
		}
		if normalised, err := ParsePolicy(string(p)); err == nil {
			e.policy = normalised
		}
	}
}

// WithDefault sets the value substituted for missing variables.
func WithDefault(value string) Option {
	return func(e *Extractor) {
		e.def = value
	}
}

// Extractor resolves variables. It is stateless between calls.
type Extractor struct {
	policy Policy
	def    string
}

// New builds an Extractor using the warn policy and an empty default.
func New(options ...Option) *Extractor {
	e := &Extractor{policy: PolicyWarn}
	for _, opt := range options {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Extract resolves the template's variables against input.
func (e *Extractor) Extract(tpl *template.Template, input *document.Node) (*Extraction, error) {
	out := &Extraction{Values: map[string]any{}}
	scopes := map[string]int{}

	for _, v := range tpl.Variables.All() {
		if v.Special {
			out.Specials = append(out.Specials, v.Name)
			continue
		}
		if v.ArrayScoped {
			dyn, ok := tpl.Shape.EnclosingDynamic(v.Path())
			if !ok {
				continue
			}
			key := index.Key(dyn.Path)
			i, ok := scopes[key]
			if !ok {
				i = len(out.Arrays)
				scopes[key] = i
				out.Arrays = append(out.Arrays, ArrayScope{Path: dyn.Path})
			}
			out.Arrays[i].Variables = append(out.Arrays[i].Variables, v.Name)
			continue
		}

		if value, ok := resolve(tpl, v, input); ok {
			out.Values[v.Name] = value
			continue
		}
		if e.policy == PolicyFail {
			return nil, &MissingVariableError{TemplateID: tpl.ID, Variable: v.Name, Paths: v.Paths}
		}
		out.Values[v.Name] = e.def
		out.Missing = append(out.Missing, v.Name)
		out.Warnings = append(out.Warnings, fmt.Sprintf("extract: variable %q not found at %s, using default %q", v.Name, v.Path(), e.def))
	}
	return out, nil
}

// ElementValues resolves the variables a template declares inside the
// dynamic array at arrayPath against one input element. When the element is
// a mapping its top-level fields are also exposed by key, without overriding
// variables resolved by path.
func ElementValues(tpl *template.Template, arrayPath document.Path, element *document.Node) map[string]any {
	out := map[string]any{}
	if tpl != nil && element != nil {
		prefix := arrayPath.Element()
		for _, v := range tpl.Variables.Regular() {
			for _, p := range v.Paths {
				if !p.HasPrefix(prefix) {
					continue
				}
				node, ok := document.Lookup(element, p.Rel(prefix))
				if !ok {
					continue
				}
				if value, ok := valueFor(tpl, p, v.Name, node); ok {
					out[v.Name] = value
					break
				}
			}
		}
	}
	if element.IsMapping() {
		for _, field := range element.Fields {
			if _, exists := out[field.Key]; !exists {
				out[field.Key] = plain(field.Value)
			}
		}
	}
	return out
}

// resolve tries every path of a variable in order.
func resolve(tpl *template.Template, v *template.Variable, input *document.Node) (any, bool) {
	for _, p := range v.Paths {
		if p.HasWildcard() {
			continue
		}
		node, ok := document.Lookup(input, p)
		if !ok {
			continue
		}
		if value, ok := valueFor(tpl, p, v.Name, node); ok {
			return value, true
		}
	}
	return nil, false
}

// valueFor reads the variable's value from the input node found at template
// path p. A scalar that is exactly one reference yields the node's value; a
// scalar mixing text and references is matched against its literal parts.
// Scalars evaluated by the engine cannot be inverted.
func valueFor(tpl *template.Template, p document.Path, name string, node *document.Node) (any, bool) {
	program, ok := tpl.ProgramAt(p)
	if !ok {
		return plain(node), true
	}
	if _, pure := program.Pure(); pure {
		return plain(node), true
	}
	if program.UsesEngine() || !node.IsScalar() {
		return nil, false
	}
	captured, ok := program.Capture(node.Text())
	if !ok {
		return nil, false
	}
	value, ok := captured[name]
	return value, ok
}

func plain(node *document.Node) any {
	if node.IsScalar() {
		return node.Value
	}
	return node.Interface()
}
