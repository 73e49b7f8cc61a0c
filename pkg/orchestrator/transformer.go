package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/goliatone/go-protoconv/pkg/document"
)

// Transformer mutates a rendered tree before it is encoded. Implementations
// can rename keys, inject metadata, or perform arbitrary rewrites.
type Transformer interface {
	Transform(ctx context.Context, root *document.Node) error
}

// TransformerFunc adapts plain functions to the Transformer interface.
type TransformerFunc func(ctx context.Context, root *document.Node) error

// Transform executes the wrapped function when non-nil.
func (fn TransformerFunc) Transform(ctx context.Context, root *document.Node) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, root)
}

// PatchTransformer applies declarative patches loaded from JSON:
//
//	{
//	  "set": {"meta.channel": "voice"},
//	  "rename": {"tao": "intent"},
//	  "remove": ["slots[0].label"]
//	}
//
// Patches run in the order set, rename, remove; keys within a section are
// applied in sorted order.
type PatchTransformer struct {
	document patchDocument
}

type patchDocument struct {
	Set    map[string]any    `json:"set"`
	Rename map[string]string `json:"rename"`
	Remove []string          `json:"remove"`
}

// NewPatchTransformer constructs a transformer from raw JSON bytes.
func NewPatchTransformer(data []byte) (*PatchTransformer, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("patch transformer: document is empty")
	}
	var doc patchDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("patch transformer: parse document: %w", err)
	}
	for _, raw := range append(append(sortedKeys(doc.Set), sortedKeys(doc.Rename)...), doc.Remove...) {
		p, err := document.ParsePath(raw)
		if err != nil {
			return nil, fmt.Errorf("patch transformer: %w", err)
		}
		if p.IsRoot() || p.HasWildcard() {
			return nil, fmt.Errorf("patch transformer: path %q must address a single node", raw)
		}
	}
	return &PatchTransformer{document: doc}, nil
}

// NewPatchTransformerFromFS loads a patch document from the provided
// filesystem path.
func NewPatchTransformerFromFS(fsys fs.FS, path string) (*PatchTransformer, error) {
	if fsys == nil {
		return nil, errors.New("patch transformer: filesystem is nil")
	}
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("patch transformer: path is required")
	}
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("patch transformer: read %s: %w", path, err)
	}
	return NewPatchTransformer(data)
}

// Transform applies the patches onto root.
func (t *PatchTransformer) Transform(ctx context.Context, root *document.Node) error {
	if root == nil {
		return errors.New("patch transformer: document is nil")
	}
	for _, raw := range sortedKeys(t.document.Set) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := setPath(root, document.MustParsePath(raw), document.FromValue(t.document.Set[raw])); err != nil {
			return fmt.Errorf("patch transformer: set %s: %w", raw, err)
		}
	}
	for _, raw := range sortedKeys(t.document.Rename) {
		if err := renamePath(root, document.MustParsePath(raw), strings.TrimSpace(t.document.Rename[raw])); err != nil {
			return fmt.Errorf("patch transformer: rename %s: %w", raw, err)
		}
	}
	for _, raw := range t.document.Remove {
		if err := removePath(root, document.MustParsePath(raw)); err != nil {
			return fmt.Errorf("patch transformer: remove %s: %w", raw, err)
		}
	}
	return nil
}

func parentOf(root *document.Node, p document.Path) (*document.Node, document.Segment, error) {
	parent, ok := document.Lookup(root, p.Parent())
	if !ok {
		return nil, document.Segment{}, fmt.Errorf("parent %s not found", p.Parent())
	}
	return parent, p[len(p)-1], nil
}

func setPath(root *document.Node, p document.Path, value *document.Node) error {
	parent, last, err := parentOf(root, p)
	if err != nil {
		return err
	}
	switch {
	case last.Kind == document.SegmentKey && parent.IsMapping():
		for i := range parent.Fields {
			if parent.Fields[i].Key == last.Key {
				parent.Fields[i].Value = value
				return nil
			}
		}
		parent.Fields = append(parent.Fields, document.F(last.Key, value))
		return nil
	case last.Kind == document.SegmentIndex && parent.IsSequence():
		if last.Index < 0 || last.Index >= len(parent.Items) {
			return fmt.Errorf("index %d out of range", last.Index)
		}
		parent.Items[last.Index] = value
		return nil
	}
	return fmt.Errorf("cannot set %s on a %s", p, parent.Kind)
}

func renamePath(root *document.Node, p document.Path, to string) error {
	if to == "" {
		return errors.New("new key is empty")
	}
	parent, last, err := parentOf(root, p)
	if err != nil {
		return err
	}
	if last.Kind != document.SegmentKey || !parent.IsMapping() {
		return fmt.Errorf("only mapping keys can be renamed")
	}
	if _, exists := parent.Get(to); exists {
		return fmt.Errorf("key %q already exists", to)
	}
	for i := range parent.Fields {
		if parent.Fields[i].Key == last.Key {
			parent.Fields[i].Key = to
			return nil
		}
	}
	return fmt.Errorf("key %q not found", last.Key)
}

func removePath(root *document.Node, p document.Path) error {
	parent, last, err := parentOf(root, p)
	if err != nil {
		return err
	}
	switch {
	case last.Kind == document.SegmentKey && parent.IsMapping():
		for i := range parent.Fields {
			if parent.Fields[i].Key == last.Key {
				parent.Fields = append(parent.Fields[:i], parent.Fields[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("key %q not found", last.Key)
	case last.Kind == document.SegmentIndex && parent.IsSequence():
		if last.Index < 0 || last.Index >= len(parent.Items) {
			return fmt.Errorf("index %d out of range", last.Index)
		}
		parent.Items = append(parent.Items[:last.Index], parent.Items[last.Index+1:]...)
		return nil
	}
	return fmt.Errorf("cannot remove %s from a %s", p, parent.Kind)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
