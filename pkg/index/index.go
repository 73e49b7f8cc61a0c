package index

import (
	"strconv"
	"strings"

	"github.com/goliatone/go-protoconv/pkg/document"
)

// Entry is one indexed node.
type Entry struct {
	Path document.Path
	Node *document.Node
}

// Index is an ordered path-to-node view over a tree. It is read-only after
// Build and safe for concurrent use.
type Index struct {
	root    *document.Node
	entries []Entry
	byPath  map[string]int
}

// Build indexes every node of root in document order.
func Build(root *document.Node) *Index {
	ix := &Index{root: root, byPath: map[string]int{}}
	document.Walk(root, func(path document.Path, node *document.Node) bool {
		ix.byPath[Key(path)] = len(ix.entries)
		ix.entries = append(ix.entries, Entry{Path: path, Node: node})
		return true
	})
	return ix
}

// Key encodes path segment by segment. Keys are length prefixed, so a
// key containing dots or brackets never collides with a nested path.
func Key(path document.Path) string {
	var b strings.Builder
	for _, seg := range path {
		switch seg.Kind {
		case document.SegmentKey:
			b.WriteByte('k')
			b.WriteString(strconv.Itoa(len(seg.Key)))
			b.WriteByte(':')
			b.WriteString(seg.Key)
		case document.SegmentIndex:
			b.WriteByte('i')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(';')
		case document.SegmentElement:
			b.WriteByte('*')
		}
	}
	return b.String()
}

// Root returns the indexed tree.
func (ix *Index) Root() *document.Node { return ix.root }

// Entries returns all entries in document order.
func (ix *Index) Entries() []Entry { return ix.entries }

// Len reports the number of indexed nodes.
func (ix *Index) Len() int { return len(ix.entries) }

// Lookup returns the node at a concrete path.
func (ix *Index) Lookup(path document.Path) (*document.Node, bool) {
	i, ok := ix.byPath[Key(path)]
	if !ok {
		return nil, false
	}
	return ix.entries[i].Node, true
}

// LookupAll resolves a path that may contain the element wildcard.
func (ix *Index) LookupAll(path document.Path) ([]*document.Node, bool) {
	if !path.HasWildcard() {
		node, ok := ix.Lookup(path)
		if !ok {
			return nil, false
		}
		return []*document.Node{node}, true
	}
	return document.LookupAll(ix.root, path)
}

// KindAt returns the node kind at a concrete path.
func (ix *Index) KindAt(path document.Path) (document.Kind, bool) {
	node, ok := ix.Lookup(path)
	if !ok {
		return document.KindInvalid, false
	}
	return node.Kind, true
}

// Sequences returns the paths of every sequence in document order.
func (ix *Index) Sequences() []document.Path {
	var out []document.Path
	for _, e := range ix.entries {
		if e.Node.IsSequence() {
			out = append(out, e.Path)
		}
	}
	return out
}

// LargestSequence reports the length of the longest sequence directly under
// the root mapping, or of the root itself when it is a sequence.
func (ix *Index) LargestSequence() int {
	if ix.root.IsSequence() {
		return len(ix.root.Items)
	}
	largest := 0
	if ix.root.IsMapping() {
		for _, field := range ix.root.Fields {
			if field.Value.IsSequence() && len(field.Value.Items) > largest {
				largest = len(field.Value.Items)
			}
		}
	}
	return largest
}
