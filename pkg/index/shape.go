// Package index builds path-addressable views over document trees. For
// templates it derives the Shape: which paths must exist in a matching input,
// which paths carry variables, and which sequences expand per input element.
package index

import (
	"fmt"

	"github.com/goliatone/go-protoconv/pkg/document"
	"github.com/goliatone/go-protoconv/pkg/guard"
)

// Requirement is a path a template demands from a compatible input.
type Requirement struct {
	Path document.Path
	// Kind is the expected node kind; KindInvalid accepts any kind.
	Kind document.Kind
	// Literal, when set, is a scalar value the input must equal.
	Literal *document.Node
}

// DynamicArray is a template sequence expanded once per input element.
type DynamicArray struct {
	Path document.Path
	// Element is the sub-template rendered for each element.
	Element *document.Node
	// Source is the explicit input path from the marker, if any.
	Source document.Path
	// Line and Column locate the sequence in the template text.
	Line   int
	Column int
}

// Shape describes what a template demands and offers.
type Shape struct {
	Required []Requirement
	// Variables lists paths whose scalar holds at least one expression.
	Variables []document.Path
	Dynamic   []DynamicArray
	Warnings  []string
}

// DynamicAt returns the dynamic array declared at path.
func (s *Shape) DynamicAt(path document.Path) (DynamicArray, bool) {
	for _, d := range s.Dynamic {
		if d.Path.Equal(path) {
			return d, true
		}
	}
	return DynamicArray{}, false
}

// EnclosingDynamic returns the dynamic array whose element template contains
// path, which must use the element wildcard.
func (s *Shape) EnclosingDynamic(path document.Path) (DynamicArray, bool) {
	idx := path.WildcardIndex()
	if idx < 0 {
		return DynamicArray{}, false
	}
	return s.DynamicAt(path[:idx])
}

// Analyze walks a template tree and derives its Shape. Scalars without
// expressions become literal requirements; scalars with expressions become
// variable paths. Sequences flagged as dynamic are described by their first
// non-marker element and addressed with the element wildcard.
func Analyze(root *document.Node) (*Shape, error) {
	s := &Shape{}
	if err := s.walk(document.Path{}, root, false); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Shape) walk(path document.Path, node *document.Node, inElement bool) error {
	if node == nil {
		return nil
	}
	switch node.Kind {
	case document.KindMapping:
		if !path.IsRoot() {
			s.Required = append(s.Required, Requirement{Path: path, Kind: document.KindMapping})
		}
		for _, field := range node.Fields {
			if err := s.walk(path.Key(field.Key), field.Value, inElement); err != nil {
				return err
			}
		}
	case document.KindSequence:
		marker, element, dynamic, err := dynamicElement(path, node)
		if err != nil {
			return err
		}
		if !path.IsRoot() {
			s.Required = append(s.Required, Requirement{Path: path, Kind: document.KindSequence})
		}
		if dynamic {
			if inElement {
				return fmt.Errorf("index: %s: nested dynamic arrays are not supported", path)
			}
			s.Dynamic = append(s.Dynamic, DynamicArray{
				Path:    path,
				Element: element,
				Source:  marker.Source,
				Line:    node.Line,
				Column:  node.Column,
			})
			if extra := extraElements(node); extra > 0 {
				s.Warnings = append(s.Warnings, fmt.Sprintf("%s: %d items after the element template are ignored", path, extra))
			}
			return s.walk(path.Element(), element, true)
		}
		for i, item := range node.Items {
			if err := s.walk(path.At(i), item, inElement); err != nil {
				return err
			}
		}
	case document.KindScalar:
		if path.IsRoot() {
			return nil
		}
		if text, ok := node.Value.(string); ok && len(guard.ScanExpressions(text)) > 0 {
			s.Variables = append(s.Variables, path)
			return nil
		}
		req := Requirement{Path: path, Kind: document.KindScalar, Literal: node}
		if node.Value == nil {
			req = Requirement{Path: path}
		}
		s.Required = append(s.Required, req)
	}
	return nil
}

// dynamicElement reports whether the sequence is dynamic and returns its
// element template.
func dynamicElement(path document.Path, seq *document.Node) (Marker, *document.Node, bool, error) {
	if len(seq.Items) > 0 && seq.Items[0].IsScalar() {
		if text, ok := seq.Items[0].Value.(string); ok {
			if marker, ok := ParseMarker(text); ok {
				if len(seq.Items) < 2 {
					return Marker{}, nil, false, fmt.Errorf("index: %s: dynamic array marker without an element template", path)
				}
				return marker, seq.Items[1], true, nil
			}
		}
	}
	if marker, ok := parseCommentMarker(seq.Comment); ok {
		if len(seq.Items) == 0 {
			return Marker{}, nil, false, fmt.Errorf("index: %s: dynamic array marker without an element template", path)
		}
		return marker, seq.Items[0], true, nil
	}
	return Marker{}, nil, false, nil
}

func extraElements(seq *document.Node) int {
	if len(seq.Items) > 0 && seq.Items[0].IsScalar() {
		if text, ok := seq.Items[0].Value.(string); ok {
			if _, ok := ParseMarker(text); ok {
				return len(seq.Items) - 2
			}
		}
	}
	return len(seq.Items) - 1
}
