package document

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentKind distinguishes mapping keys, fixed sequence indexes and the
// element wildcard used for dynamic arrays.
type SegmentKind uint8

const (
	SegmentKey SegmentKind = iota
	SegmentIndex
	SegmentElement
)

// Segment is one step in a Path.
type Segment struct {
	Kind  SegmentKind
	Key   string
	Index int
}

// Path addresses a node inside a tree, for example slots[0].name or
// data[*].phone. The empty path addresses the root.
type Path []Segment

// Key returns a copy of p extended with a mapping key.
func (p Path) Key(key string) Path {
	return p.append(Segment{Kind: SegmentKey, Key: key})
}

// At returns a copy of p extended with a sequence index.
func (p Path) At(index int) Path {
	return p.append(Segment{Kind: SegmentIndex, Index: index})
}

// Element returns a copy of p extended with the element wildcard.
func (p Path) Element() Path {
	return p.append(Segment{Kind: SegmentElement})
}

func (p Path) append(seg Segment) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// IsRoot reports whether p addresses the tree root.
func (p Path) IsRoot() bool { return len(p) == 0 }

// Parent returns p without its final segment.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	out := make(Path, len(p)-1)
	copy(out, p[:len(p)-1])
	return out
}

// HasWildcard reports whether p contains an element segment.
func (p Path) HasWildcard() bool {
	for _, seg := range p {
		if seg.Kind == SegmentElement {
			return true
		}
	}
	return false
}

// WildcardIndex returns the position of the first element segment or -1.
func (p Path) WildcardIndex() int {
	for i, seg := range p {
		if seg.Kind == SegmentElement {
			return i
		}
	}
	return -1
}

// Equal reports whether p and other address the same location.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a leading part of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// Rel returns the segments of p following prefix. The caller must ensure
// p.HasPrefix(prefix).
func (p Path) Rel(prefix Path) Path {
	out := make(Path, len(p)-len(prefix))
	copy(out, p[len(prefix):])
	return out
}

// Join concatenates two paths.
func (p Path) Join(rest Path) Path {
	out := make(Path, 0, len(p)+len(rest))
	out = append(out, p...)
	return append(out, rest...)
}

// String renders p in dotted form. The root renders as "$".
func (p Path) String() string {
	if len(p) == 0 {
		return "$"
	}
	var b strings.Builder
	for i, seg := range p {
		switch seg.Kind {
		case SegmentKey:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(seg.Key)
		case SegmentIndex:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(']')
		case SegmentElement:
			b.WriteString("[*]")
		}
	}
	return b.String()
}

// ParsePath parses the dotted form produced by Path.String.
func ParsePath(raw string) (Path, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "$" {
		return Path{}, nil
	}
	var out Path
	i := 0
	for i < len(raw) {
		switch raw[i] {
		case '.':
			if i == 0 || i == len(raw)-1 {
				return nil, fmt.Errorf("document: invalid path %q: misplaced '.'", raw)
			}
			i++
		case '[':
			end := strings.IndexByte(raw[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("document: invalid path %q: unterminated '['", raw)
			}
			inner := raw[i+1 : i+end]
			if inner == "*" {
				out = append(out, Segment{Kind: SegmentElement})
			} else {
				idx, err := strconv.Atoi(inner)
				if err != nil || idx < 0 {
					return nil, fmt.Errorf("document: invalid path %q: bad index %q", raw, inner)
				}
				out = append(out, Segment{Kind: SegmentIndex, Index: idx})
			}
			i += end + 1
		default:
			j := i
			for j < len(raw) && raw[j] != '.' && raw[j] != '[' {
				j++
			}
			out = append(out, Segment{Kind: SegmentKey, Key: raw[i:j]})
			i = j
		}
	}
	return out, nil
}

// MustParsePath is ParsePath for static paths; it panics on error.
func MustParsePath(raw string) Path {
	p, err := ParsePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Lookup resolves a concrete path against root. Paths containing an element
// wildcard never resolve; use LookupAll for those.
func Lookup(root *Node, path Path) (*Node, bool) {
	current := root
	for _, seg := range path {
		if current == nil {
			return nil, false
		}
		var ok bool
		switch seg.Kind {
		case SegmentKey:
			current, ok = current.Get(seg.Key)
		case SegmentIndex:
			current, ok = current.Index(seg.Index)
		default:
			return nil, false
		}
		if !ok {
			return nil, false
		}
	}
	return current, current != nil
}

// LookupAll resolves path against root, expanding each element wildcard to
// every item of the sequence found there. The second result is false when a
// non-wildcard step fails to resolve.
func LookupAll(root *Node, path Path) ([]*Node, bool) {
	idx := path.WildcardIndex()
	if idx < 0 {
		node, ok := Lookup(root, path)
		if !ok {
			return nil, false
		}
		return []*Node{node}, true
	}
	seq, ok := Lookup(root, path[:idx])
	if !ok || !seq.IsSequence() {
		return nil, false
	}
	rest := path[idx+1:]
	var out []*Node
	for _, item := range seq.Items {
		nodes, ok := LookupAll(item, rest)
		if !ok {
			return nil, false
		}
		out = append(out, nodes...)
	}
	return out, true
}

// Walk visits every node of the tree in document order. Returning false from
// fn skips the children of the visited node.
func Walk(root *Node, fn func(path Path, node *Node) bool) {
	walk(Path{}, root, fn)
}

func walk(path Path, node *Node, fn func(Path, *Node) bool) {
	if node == nil || !fn(path, node) {
		return
	}
	switch node.Kind {
	case KindMapping:
		for _, field := range node.Fields {
			walk(path.Key(field.Key), field.Value, fn)
		}
	case KindSequence:
		for i, item := range node.Items {
			walk(path.At(i), item, fn)
		}
	}
}
