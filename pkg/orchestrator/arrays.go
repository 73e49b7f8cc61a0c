package orchestrator

import (
	"github.com/goliatone/go-protoconv/pkg/document"
	"github.com/goliatone/go-protoconv/pkg/extract"
	"github.com/goliatone/go-protoconv/pkg/index"
	"github.com/goliatone/go-protoconv/pkg/template"
)

// arraySource feeds dynamic arrays of the target template from the input.
// The input sequence is found at the marker's explicit source, then at the
// same path, then at the first dynamic array of the matched source template.
type arraySource struct {
	input  *document.Node
	source *template.Template
	target *template.Template
}

func newArraySource(input *document.Node, source, target *template.Template) *arraySource {
	return &arraySource{input: input, source: source, target: target}
}

func inputPath(dyn index.DynamicArray) document.Path {
	if dyn.Source != nil {
		return dyn.Source
	}
	return dyn.Path
}

func (a *arraySource) sequence(path document.Path) (*document.Node, bool) {
	node, ok := document.Lookup(a.input, path)
	if !ok || !node.IsSequence() {
		return nil, false
	}
	return node, true
}

// sourceArray finds the source template array that describes the input
// sequence behind dyn.
func (a *arraySource) sourceArray(dyn index.DynamicArray) (index.DynamicArray, bool) {
	if a.source == nil {
		return index.DynamicArray{}, false
	}
	want := inputPath(dyn)
	for _, d := range a.source.Shape.Dynamic {
		if inputPath(d).Equal(want) {
			return d, true
		}
	}
	if dyn.Source == nil && a.source != a.target && len(a.source.Shape.Dynamic) > 0 {
		if _, ok := a.sequence(want); !ok {
			return a.source.Shape.Dynamic[0], true
		}
	}
	return index.DynamicArray{}, false
}

// Elements implements render.ArraySource.
func (a *arraySource) Elements(dyn index.DynamicArray) ([]*document.Node, bool) {
	if seq, ok := a.sequence(inputPath(dyn)); ok {
		return seq.Items, true
	}
	if d, ok := a.sourceArray(dyn); ok {
		if seq, ok := a.sequence(inputPath(d)); ok {
			return seq.Items, true
		}
	}
	return nil, false
}

// ElementVariables implements render.ArraySource. Values read through the
// source template win over values read through the target template.
func (a *arraySource) ElementVariables(dyn index.DynamicArray, element *document.Node) map[string]any {
	var out map[string]any
	if d, ok := a.sourceArray(dyn); ok {
		out = extract.ElementValues(a.source, d.Path, element)
	}
	fallback := extract.ElementValues(a.target, dyn.Path, element)
	if out == nil {
		return fallback
	}
	for name, value := range fallback {
		if _, exists := out[name]; !exists {
			out[name] = value
		}
	}
	return out
}
