package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the serialisation of a document.
type Format uint8

const (
	FormatYAML Format = iota
	FormatJSON
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "yaml"
}

// DetectFormat treats text whose first non-space character opens a JSON
// object or array as JSON; everything else is YAML.
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimLeft(data, " \t\r\n\uFEFF")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// Decode parses JSON or YAML text into a tree, reporting the detected format.
// JSON input that fails strict parsing is retried as YAML, since YAML flow
// syntax is a superset of JSON.
func Decode(data []byte) (*Node, Format, error) {
	format := DetectFormat(data)
	if format == FormatJSON {
		node, err := DecodeJSON(data)
		if err == nil {
			return node, FormatJSON, nil
		}
		if yamlNode, yerr := DecodeYAML(data); yerr == nil {
			return yamlNode, FormatJSON, nil
		}
		return nil, FormatJSON, err
	}
	node, err := DecodeYAML(data)
	return node, FormatYAML, err
}

// DecodeYAML parses YAML text into a tree. An empty document yields a null
// scalar.
func DecodeYAML(data []byte) (*Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("document: decode yaml: %w", err)
	}
	if root.Kind == 0 {
		return Scalar(nil), nil
	}
	return FromYAML(&root)
}

// FromYAML converts a yaml.v3 node into a tree, keeping key order, positions
// and comments attached to keys.
func FromYAML(n *yaml.Node) (*Node, error) {
	return fromYAML(n, 0)
}

const maxAliasDepth = 64

func fromYAML(n *yaml.Node, depth int) (*Node, error) {
	if n == nil {
		return Scalar(nil), nil
	}
	if depth > maxAliasDepth {
		return nil, fmt.Errorf("document: line %d: alias nesting too deep", n.Line)
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Scalar(nil), nil
		}
		out, err := fromYAML(n.Content[0], depth)
		if err != nil {
			return nil, err
		}
		out.Comment = joinComments(out.Comment, n.HeadComment)
		return out, nil
	case yaml.AliasNode:
		return fromYAML(n.Alias, depth+1)
	case yaml.MappingNode:
		out := &Node{Kind: KindMapping, Line: n.Line, Column: n.Column, Comment: joinComments(n.HeadComment, n.LineComment)}
		out.Fields = make([]Field, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valueNode := n.Content[i], n.Content[i+1]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("document: line %d column %d: mapping key must be a scalar", keyNode.Line, keyNode.Column)
			}
			value, err := fromYAML(valueNode, depth)
			if err != nil {
				return nil, err
			}
			value.Comment = joinComments(keyNode.HeadComment, keyNode.LineComment, value.Comment)
			out.Fields = append(out.Fields, Field{Key: keyNode.Value, Value: value})
		}
		return out, nil
	case yaml.SequenceNode:
		out := &Node{Kind: KindSequence, Line: n.Line, Column: n.Column, Comment: joinComments(n.HeadComment, n.LineComment)}
		out.Items = make([]*Node, 0, len(n.Content))
		for _, child := range n.Content {
			item, err := fromYAML(child, depth)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, item)
		}
		return out, nil
	case yaml.ScalarNode:
		value, err := scalarFromYAML(n)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindScalar, Value: value, Line: n.Line, Column: n.Column, Comment: joinComments(n.HeadComment, n.LineComment)}, nil
	default:
		return nil, fmt.Errorf("document: line %d: unsupported yaml node kind %d", n.Line, n.Kind)
	}
}

func scalarFromYAML(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, fmt.Errorf("document: line %d: %w", n.Line, err)
		}
		return b, nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			// Out of int64 range; keep the float approximation.
			var f float64
			if ferr := n.Decode(&f); ferr != nil {
				return nil, fmt.Errorf("document: line %d: %w", n.Line, err)
			}
			return f, nil
		}
		return i, nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("document: line %d: %w", n.Line, err)
		}
		return f, nil
	default:
		return n.Value, nil
	}
}

func joinComments(parts ...string) string {
	var kept []string
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "\n")
}

// DecodeJSON parses JSON text into a tree, preserving object key order.
func DecodeJSON(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	lines := newLineIndex(data)
	node, err := decodeJSONValue(dec, lines)
	if err != nil {
		return nil, fmt.Errorf("document: decode json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("document: decode json: trailing data after top-level value")
	}
	return node, nil
}

func decodeJSONValue(dec *json.Decoder, lines lineIndex) (*Node, error) {
	offset := dec.InputOffset()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	line, col := lines.position(int(offset))
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			node := &Node{Kind: KindMapping, Line: line, Column: col}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				value, err := decodeJSONValue(dec, lines)
				if err != nil {
					return nil, err
				}
				node.Fields = append(node.Fields, Field{Key: key, Value: value})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		case '[':
			node := &Node{Kind: KindSequence, Line: line, Column: col, Items: []*Node{}}
			for dec.More() {
				item, err := decodeJSONValue(dec, lines)
				if err != nil {
					return nil, err
				}
				node.Items = append(node.Items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case json.Number:
		node := &Node{Kind: KindScalar, Line: line, Column: col}
		node.Value = jsonNumber(t)
		return node, nil
	default:
		return &Node{Kind: KindScalar, Value: t, Line: line, Column: col}, nil
	}
}

// jsonNumber keeps the number text whenever int64 or float64 would not
// re-encode it verbatim, as with 1.0 or integers beyond the int64 range.
func jsonNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil && strconv.FormatFloat(f, 'g', -1, 64) == n.String() {
		return f
	}
	return n
}

// lineIndex maps byte offsets to 1-based line/column pairs.
type lineIndex struct {
	data   []byte
	starts []int
}

func newLineIndex(data []byte) lineIndex {
	starts := []int{0}
	for i, b := range data {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return lineIndex{data: data, starts: starts}
}

func (l lineIndex) position(offset int) (int, int) {
	// The decoder reports the offset before any separating whitespace.
	for offset < len(l.data) {
		switch l.data[offset] {
		case ' ', '\t', '\r', '\n', ',', ':':
			offset++
			continue
		}
		break
	}
	line := sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset })
	return line, offset - l.starts[line-1] + 1
}

// Encode serialises the tree in the requested format.
func Encode(n *Node, format Format) ([]byte, error) {
	if format == FormatJSON {
		return EncodeJSON(n)
	}
	return EncodeYAML(n)
}

// EncodeJSON writes the tree as indented JSON, keeping mapping order.
func EncodeJSON(n *Node) ([]byte, error) {
	var compact bytes.Buffer
	if err := writeJSON(&compact, n); err != nil {
		return nil, fmt.Errorf("document: encode json: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("document: encode json: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, n *Node) error {
	if n == nil {
		buf.WriteString("null")
		return nil
	}
	switch n.Kind {
	case KindMapping:
		buf.WriteByte('{')
		for i, field := range n.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, field.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeJSON(buf, field.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range n.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return writeJSONScalar(buf, n.Value)
	}
	return nil
}

func writeJSONScalar(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("unsupported float value %v", v)
		}
		buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case json.Number:
		buf.WriteString(v.String())
	case string:
		return writeJSONString(buf, v)
	default:
		return writeJSONString(buf, FormatScalar(v))
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encoder appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// EncodeYAML writes the tree as block-style YAML with two-space indentation.
func EncodeYAML(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(ToYAML(n)); err != nil {
		return nil, fmt.Errorf("document: encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("document: encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// ToYAML converts the tree into a yaml.v3 node suitable for encoding.
func ToYAML(n *Node) *yaml.Node {
	if n == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
	switch n.Kind {
	case KindMapping:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, field := range n.Fields {
			out.Content = append(out.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: field.Key},
				ToYAML(field.Value),
			)
		}
		return out
	case KindSequence:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range n.Items {
			out.Content = append(out.Content, ToYAML(item))
		}
		return out
	default:
		return scalarToYAML(n.Value)
	}
}

func scalarToYAML(value any) *yaml.Node {
	switch v := value.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
	case int64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(v, 10)}
	case float64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(v, 'g', -1, 64)}
	case json.Number:
		tag := "!!int"
		if strings.ContainsAny(v.String(), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v.String()}
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: FormatScalar(v)}
	}
}
