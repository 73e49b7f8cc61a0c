package document

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies the shape of a node.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindMapping
	KindSequence
	KindScalar
)

func (k Kind) String() string {
	switch k {
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	case KindScalar:
		return "scalar"
	default:
		return "invalid"
	}
}

// Field is a single key/value pair of a mapping node.
type Field struct {
	Key   string
	Value *Node
}

// Node is one element of a document tree. Scalars hold string, int64, float64,
// bool or nil values. Line and Column are 1-based and zero when unknown.
type Node struct {
	Kind    Kind
	Value   any
	Fields  []Field
	Items   []*Node
	Line    int
	Column  int
	Comment string
}

// Scalar builds a scalar node, normalising Go numeric types.
func Scalar(value any) *Node {
	return &Node{Kind: KindScalar, Value: normaliseScalar(value)}
}

// Mapping builds a mapping node from ordered fields.
func Mapping(fields ...Field) *Node {
	return &Node{Kind: KindMapping, Fields: fields}
}

// Sequence builds a sequence node.
func Sequence(items ...*Node) *Node {
	return &Node{Kind: KindSequence, Items: items}
}

// F is shorthand for constructing a Field.
func F(key string, value *Node) Field {
	return Field{Key: key, Value: value}
}

// IsMapping reports whether n is a non-nil mapping.
func (n *Node) IsMapping() bool { return n != nil && n.Kind == KindMapping }

// IsSequence reports whether n is a non-nil sequence.
func (n *Node) IsSequence() bool { return n != nil && n.Kind == KindSequence }

// IsScalar reports whether n is a non-nil scalar.
func (n *Node) IsScalar() bool { return n != nil && n.Kind == KindScalar }

// IsNull reports whether n is missing or a null scalar.
func (n *Node) IsNull() bool {
	return n == nil || (n.Kind == KindScalar && n.Value == nil)
}

// Get returns the value stored under key in a mapping node.
func (n *Node) Get(key string) (*Node, bool) {
	if !n.IsMapping() {
		return nil, false
	}
	for _, field := range n.Fields {
		if field.Key == key {
			return field.Value, true
		}
	}
	return nil, false
}

// Index returns the i-th element of a sequence node.
func (n *Node) Index(i int) (*Node, bool) {
	if !n.IsSequence() || i < 0 || i >= len(n.Items) {
		return nil, false
	}
	return n.Items[i], true
}

// Len reports the number of fields or items; scalars have length zero.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	switch n.Kind {
	case KindMapping:
		return len(n.Fields)
	case KindSequence:
		return len(n.Items)
	default:
		return 0
	}
}

// Text returns the string form of a scalar. Null renders as the empty string.
func (n *Node) Text() string {
	if n == nil || n.Kind != KindScalar {
		return ""
	}
	return FormatScalar(n.Value)
}

// Clone returns a deep copy of n. The copy shares no nodes with n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Kind:    n.Kind,
		Value:   n.Value,
		Line:    n.Line,
		Column:  n.Column,
		Comment: n.Comment,
	}
	if len(n.Fields) > 0 {
		out.Fields = make([]Field, len(n.Fields))
		for i, field := range n.Fields {
			out.Fields[i] = Field{Key: field.Key, Value: field.Value.Clone()}
		}
	}
	if len(n.Items) > 0 {
		out.Items = make([]*Node, len(n.Items))
		for i, item := range n.Items {
			out.Items[i] = item.Clone()
		}
	}
	return out
}

// Interface converts the tree into plain Go values (map[string]any, []any and
// scalars). Mapping order is lost; use it only where order does not matter.
func (n *Node) Interface() any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindMapping:
		out := make(map[string]any, len(n.Fields))
		for _, field := range n.Fields {
			out[field.Key] = field.Value.Interface()
		}
		return out
	case KindSequence:
		out := make([]any, len(n.Items))
		for i, item := range n.Items {
			out[i] = item.Interface()
		}
		return out
	default:
		return n.Value
	}
}

// FromValue builds a tree from plain Go values. Map keys are sorted so the
// result is deterministic; callers needing a specific order should build nodes
// directly or decode from text.
func FromValue(value any) *Node {
	switch v := value.(type) {
	case *Node:
		return v.Clone()
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		node := &Node{Kind: KindMapping, Fields: make([]Field, 0, len(keys))}
		for _, key := range keys {
			node.Fields = append(node.Fields, Field{Key: key, Value: FromValue(v[key])})
		}
		return node
	case []any:
		node := &Node{Kind: KindSequence, Items: make([]*Node, len(v))}
		for i, item := range v {
			node.Items[i] = FromValue(item)
		}
		return node
	case []map[string]any:
		node := &Node{Kind: KindSequence, Items: make([]*Node, len(v))}
		for i, item := range v {
			node.Items[i] = FromValue(item)
		}
		return node
	case []string:
		node := &Node{Kind: KindSequence, Items: make([]*Node, len(v))}
		for i, item := range v {
			node.Items[i] = Scalar(item)
		}
		return node
	default:
		return Scalar(v)
	}
}

// FormatScalar renders a scalar value the way it is substituted into
// templates: integers without exponent, floats in shortest form, null as "".
func FormatScalar(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// SameScalar reports whether two scalar nodes hold the same value. Numbers
// compare by value, so 1, 1.0 and 1e0 are equal.
func SameScalar(a, b *Node) bool {
	if af, ok := number(a.Value); ok {
		if bf, ok := number(b.Value); ok {
			return af == bf
		}
	}
	return a.Text() == b.Text()
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func normaliseScalar(value any) any {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return float64(v)
	default:
		return v
	}
}
