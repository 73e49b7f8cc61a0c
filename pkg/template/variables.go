package template

import (
	"github.com/goliatone/go-protoconv/pkg/document"
	"github.com/goliatone/go-protoconv/pkg/expr"
)

// Variable is one entry of a template's variable-path map.
type Variable struct {
	// Name is the identifier as written, special prefix included.
	Name string
	// Key is Name without the special prefix; special functions are
	// registered under it.
	Key     string
	Special bool
	// Paths lists every template location referencing the variable; the
	// first is the primary extraction path.
	Paths []document.Path
	// Filters are those of the first reference.
	Filters []expr.Filter
	// ArrayScoped is set when the primary path lies inside a dynamic array
	// element template.
	ArrayScoped bool
}

// Path returns the primary path.
func (v *Variable) Path() document.Path {
	if len(v.Paths) == 0 {
		return nil
	}
	return v.Paths[0]
}

// VariableMap is an ordered, name-unique variable-path map.
type VariableMap struct {
	order  []string
	byName map[string]*Variable
}

func newVariableMap() VariableMap {
	return VariableMap{byName: map[string]*Variable{}}
}

func (m *VariableMap) add(ref expr.Reference, path document.Path) {
	if v, ok := m.byName[ref.Name]; ok {
		for _, p := range v.Paths {
			if p.Equal(path) {
				return
			}
		}
		v.Paths = append(v.Paths, path)
		return
	}
	m.byName[ref.Name] = &Variable{
		Name:        ref.Name,
		Key:         ref.Key,
		Special:     ref.Special,
		Paths:       []document.Path{path},
		Filters:     ref.Filters,
		ArrayScoped: path.HasWildcard(),
	}
	m.order = append(m.order, ref.Name)
}

// Get returns the variable with the given full name.
func (m VariableMap) Get(name string) (*Variable, bool) {
	v, ok := m.byName[name]
	return v, ok
}

// Len reports the number of variables.
func (m VariableMap) Len() int { return len(m.order) }

// All returns variables in first-reference order.
func (m VariableMap) All() []*Variable {
	out := make([]*Variable, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.byName[name])
	}
	return out
}

// Regular returns the non-special variables.
func (m VariableMap) Regular() []*Variable {
	return m.filter(false)
}

// Special returns the special variables.
func (m VariableMap) Special() []*Variable {
	return m.filter(true)
}

func (m VariableMap) filter(special bool) []*Variable {
	var out []*Variable
	for _, name := range m.order {
		if v := m.byName[name]; v.Special == special {
			out = append(out, v)
		}
	}
	return out
}
