// Package convctx carries per-node conversion metadata through rendering.
// A Context is a value: every structural descent and every array element
// receives its own derived copy, so siblings never observe each other's
// position.
package convctx

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goliatone/go-protoconv/pkg/document"
)

// Progress describes the position of an array element.
type Progress struct {
	Current    int
	Total      int
	Percentage float64
}

// NewProgress derives progress for the zero-based index of total elements.
// The percentage is rounded to one decimal.
func NewProgress(index, total int) Progress {
	p := Progress{Current: index + 1, Total: total}
	if total > 0 {
		p.Percentage = math.Round(float64(p.Current)/float64(total)*1000) / 10
	}
	return p
}

func (p Progress) String() string {
	return fmt.Sprintf("%d/%d (%.1f%%)", p.Current, p.Total, p.Percentage)
}

// DebugEntry is one diagnostic record.
type DebugEntry struct {
	Path    string
	Message string
}

type debugLog struct {
	mu      sync.Mutex
	entries []DebugEntry
}

// Context is the conversion metadata visible to special functions.
type Context struct {
	ConversionID   string
	SourceFamily   string
	TargetFamily   string
	SourceProtocol string
	TargetProtocol string
	StartedAt      time.Time
	CurrentPath    document.Path
	ParentPath     document.Path
	Depth          int
	// TotalInputItems is the length of the largest top-level input array.
	TotalInputItems int

	source    *document.Node
	variables map[string]any

	inArray    bool
	arrayPath  document.Path
	arrayIndex int
	arrayTotal int
	element    *document.Node

	debug *debugLog
}

// Option configures a root Context.
type Option func(*Context)

// WithFamilies records the source and target family tags.
func WithFamilies(source, target string) Option {
	return func(c *Context) {
		c.SourceFamily = source
		c.TargetFamily = target
	}
}

// WithProtocols records the matched source and target template ids.
func WithProtocols(source, target string) Option {
	return func(c *Context) {
		c.SourceProtocol = source
		c.TargetProtocol = target
	}
}

// WithVariables exposes extracted regular variables. The map must not be
// modified afterwards.
func WithVariables(vars map[string]any) Option {
	return func(c *Context) {
		c.variables = vars
	}
}

// WithStartedAt overrides the conversion start time.
func WithStartedAt(ts time.Time) Option {
	return func(c *Context) {
		c.StartedAt = ts
	}
}

// WithTotalInputItems overrides the input item count.
func WithTotalInputItems(n int) Option {
	return func(c *Context) {
		c.TotalInputItems = n
	}
}

// WithID overrides the generated conversion id.
func WithID(id string) Option {
	return func(c *Context) {
		if id != "" {
			c.ConversionID = id
		}
	}
}

// New builds the root Context of a conversion with a fresh conversion id.
func New(source *document.Node, options ...Option) Context {
	c := Context{
		ConversionID: NewID(),
		StartedAt:    time.Now(),
		CurrentPath:  document.Path{},
		source:       source,
		debug:        &debugLog{},
	}
	for _, opt := range options {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

// Descend derives the context for a child node.
func (c Context) Descend(seg document.Segment) Context {
	child := c
	child.ParentPath = c.CurrentPath
	child.CurrentPath = appendSegment(c.CurrentPath, seg)
	child.Depth = c.Depth + 1
	return child
}

// ForElement derives the context for element index of an expanded array with
// total elements. element is the corresponding input element, if any.
func (c Context) ForElement(arrayPath document.Path, index, total int, element *document.Node) Context {
	child := c.Descend(document.Segment{Kind: document.SegmentIndex, Index: index})
	child.inArray = true
	child.arrayPath = append(document.Path(nil), arrayPath...)
	child.arrayIndex = index
	child.arrayTotal = total
	child.element = element
	return child
}

func appendSegment(p document.Path, seg document.Segment) document.Path {
	out := make(document.Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// InArray reports whether the context belongs to an expanded array element.
func (c Context) InArray() bool { return c.inArray }

// ArrayPath returns the template path of the enclosing dynamic array.
func (c Context) ArrayPath() document.Path { return c.arrayPath }

// ArrayIndex returns the zero-based element index.
func (c Context) ArrayIndex() (int, bool) { return c.arrayIndex, c.inArray }

// ArrayTotal returns the element count of the enclosing array.
func (c Context) ArrayTotal() (int, bool) { return c.arrayTotal, c.inArray }

// Progress returns the element's progress.
func (c Context) Progress() (Progress, bool) {
	if !c.inArray {
		return Progress{}, false
	}
	return NewProgress(c.arrayIndex, c.arrayTotal), true
}

// IsLast reports whether the context is the final element of its array.
func (c Context) IsLast() bool {
	return c.inArray && c.arrayIndex == c.arrayTotal-1
}

// Element returns the input element being rendered.
func (c Context) Element() *document.Node { return c.element }

// Source returns the input document.
func (c Context) Source() *document.Node { return c.source }

// SourceValue reads the input document at a dotted path such as
// "slots.name" or "items[0].id" and returns its plain value, or def when the
// path does not resolve.
func (c Context) SourceValue(path string, def any) any {
	return lookupValue(c.source, path, def)
}

// ElementValue reads the current input element at a relative path.
func (c Context) ElementValue(path string, def any) any {
	return lookupValue(c.element, path, def)
}

func lookupValue(root *document.Node, path string, def any) any {
	if root == nil {
		return def
	}
	p, err := document.ParsePath(path)
	if err != nil {
		return def
	}
	node, ok := document.Lookup(root, p)
	if !ok {
		return def
	}
	return node.Interface()
}

// Variable returns an extracted regular variable.
func (c Context) Variable(name string) (any, bool) {
	v, ok := c.variables[name]
	return v, ok
}

// AddDebug appends a diagnostic entry shared by every context derived from
// the same root. It is not meant for control flow.
func (c Context) AddDebug(format string, args ...any) {
	if c.debug == nil {
		return
	}
	c.debug.mu.Lock()
	c.debug.entries = append(c.debug.entries, DebugEntry{
		Path:    c.CurrentPath.String(),
		Message: fmt.Sprintf(format, args...),
	})
	c.debug.mu.Unlock()
}

// Debug returns a snapshot of the diagnostic entries.
func (c Context) Debug() []DebugEntry {
	if c.debug == nil {
		return nil
	}
	c.debug.mu.Lock()
	defer c.debug.mu.Unlock()
	out := make([]DebugEntry, len(c.debug.entries))
	copy(out, c.debug.entries)
	return out
}
