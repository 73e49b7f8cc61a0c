package document_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-protoconv/pkg/document"
)

func TestDecodeYAML_PreservesOrderAndPositions(t *testing.T) {
	t.Parallel()

	src := "domain: telephone\naction: DIAL\nslots:\n  name: Alice\n  count: 3\n  ratio: 0.5\n  active: true\n  empty: null\n"
	node, format, err := document.Decode([]byte(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if format != document.FormatYAML {
		t.Fatalf("format = %v, want yaml", format)
	}

	var keys []string
	for _, field := range node.Fields {
		keys = append(keys, field.Key)
	}
	if diff := cmp.Diff([]string{"domain", "action", "slots"}, keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}

	slots, ok := node.Get("slots")
	if !ok {
		t.Fatalf("slots missing")
	}
	if slots.Line != 4 || slots.Column != 3 {
		t.Fatalf("slots position = %d:%d, want 4:3", slots.Line, slots.Column)
	}

	want := map[string]any{
		"name":   "Alice",
		"count":  int64(3),
		"ratio":  0.5,
		"active": true,
		"empty":  nil,
	}
	if diff := cmp.Diff(want, slots.Interface()); diff != "" {
		t.Fatalf("slots mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeYAML_KeyCommentsAttachToValue(t *testing.T) {
	t.Parallel()

	src := "items:  # array_dynamic: true\n  - a\n  - b\n"
	node, err := document.DecodeYAML([]byte(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	items, _ := node.Get("items")
	if !strings.Contains(items.Comment, "array_dynamic: true") {
		t.Fatalf("comment = %q, want marker", items.Comment)
	}
}

func TestDecodeJSON_PreservesOrder(t *testing.T) {
	t.Parallel()

	src := `{"z": 1, "a": [true, null, "x"], "m": {"k": 1.25}}`
	node, format, err := document.Decode([]byte(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if format != document.FormatJSON {
		t.Fatalf("format = %v, want json", format)
	}
	if node.Fields[0].Key != "z" || node.Fields[1].Key != "a" || node.Fields[2].Key != "m" {
		t.Fatalf("unexpected key order: %+v", node.Fields)
	}
	if node.Line != 1 || node.Column != 1 {
		t.Fatalf("root position = %d:%d, want 1:1", node.Line, node.Column)
	}
	k, ok := document.Lookup(node, document.MustParsePath("m.k"))
	if !ok || k.Value != 1.25 {
		t.Fatalf("m.k = %v (%v), want 1.25", k, ok)
	}
}

func TestDecodeJSON_RejectsTrailingData(t *testing.T) {
	t.Parallel()

	if _, err := document.DecodeJSON([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestEncodeJSON_KeepsOrder(t *testing.T) {
	t.Parallel()

	node := document.Mapping(
		document.F("tao", document.Scalar("phone.contact.call")),
		document.F("slots", document.Sequence(
			document.Mapping(
				document.F("name", document.Scalar("PERSON")),
				document.F("value", document.Scalar("<Alice>")),
			),
		)),
		document.F("count", document.Scalar(2)),
	)
	got, err := document.EncodeJSON(node)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{
  "tao": "phone.contact.call",
  "slots": [
    {
      "name": "PERSON",
      "value": "<Alice>"
    }
  ],
  "count": 2
}
`
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Fatalf("json mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeYAML_RoundTrip(t *testing.T) {
	t.Parallel()

	node := document.Mapping(
		document.F("b", document.Scalar("123")),
		document.F("a", document.Sequence(document.Scalar("x"), document.Scalar(int64(2)))),
	)
	data, err := document.EncodeYAML(node)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := document.DecodeYAML(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Fields[0].Key != "b" {
		t.Fatalf("order lost: %s", data)
	}
	b, _ := back.Get("b")
	if b.Value != "123" {
		t.Fatalf("b = %#v, want string 123 (output %s)", b.Value, data)
	}
	if diff := cmp.Diff(node.Interface(), back.Interface()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPath_StringAndParse(t *testing.T) {
	t.Parallel()

	cases := []string{"$", "slots", "slots[0].name", "data[*].phone", "a.b[2][3].c"}
	for _, raw := range cases {
		path, err := document.ParsePath(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got := path.String(); got != raw {
			t.Fatalf("String() = %q, want %q", got, raw)
		}
	}

	for _, raw := range []string{"a.", "a[", "a[x]", ".a"} {
		if _, err := document.ParsePath(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestPath_DerivationDoesNotAlias(t *testing.T) {
	t.Parallel()

	base := make(document.Path, 0, 8).Key("items")
	first := base.At(0)
	second := base.At(1)
	if first.String() != "items[0]" || second.String() != "items[1]" {
		t.Fatalf("paths aliased: %s %s", first, second)
	}
}

func TestLookupAll_ExpandsWildcard(t *testing.T) {
	t.Parallel()

	root := document.FromValue(map[string]any{
		"data": []any{
			map[string]any{"name": "a"},
			map[string]any{"name": "b"},
		},
	})
	nodes, ok := document.LookupAll(root, document.MustParsePath("data[*].name"))
	if !ok {
		t.Fatalf("lookup failed")
	}
	var names []string
	for _, n := range nodes {
		names = append(names, n.Text())
	}
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}

	if _, ok := document.LookupAll(root, document.MustParsePath("data[*].missing")); ok {
		t.Fatalf("expected missing field to fail")
	}
}

func TestClone_IsDeep(t *testing.T) {
	t.Parallel()

	orig := document.FromValue(map[string]any{"a": []any{"x"}})
	clone := orig.Clone()
	a, _ := clone.Get("a")
	a.Items[0].Value = "changed"

	origA, _ := orig.Get("a")
	if origA.Items[0].Value != "x" {
		t.Fatalf("clone shares nodes with original")
	}
}

func TestFormatScalar(t *testing.T) {
	t.Parallel()

	cases := map[string]any{
		"":     nil,
		"true": true,
		"42":   int64(42),
		"0.5":  0.5,
		"1000": 1000.0,
		"hi":   "hi",
	}
	for want, in := range cases {
		if got := document.FormatScalar(in); got != want {
			t.Fatalf("FormatScalar(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectFormat_SkipsByteOrderMark(t *testing.T) {
	t.Parallel()

	if got := document.DetectFormat([]byte("\uFEFF  {\"a\": 1}")); got != document.FormatJSON {
		t.Fatalf("format = %v, want json", got)
	}
	if got := document.DetectFormat([]byte("\uFEFFa: 1")); got != document.FormatYAML {
		t.Fatalf("format = %v, want yaml", got)
	}
}

func TestDecodeJSON_KeepsNumberText(t *testing.T) {
	t.Parallel()

	src := `{"ratio": 1.0, "big": 18446744073709551615, "small": 7, "half": 0.5}`
	node, err := document.DecodeJSON([]byte(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	small, _ := node.Get("small")
	if small.Value != int64(7) {
		t.Fatalf("small = %#v, want int64(7)", small.Value)
	}
	half, _ := node.Get("half")
	if half.Value != 0.5 {
		t.Fatalf("half = %#v, want 0.5", half.Value)
	}

	got, err := document.EncodeJSON(node)
	if err != nil {
		t.Fatalf("encode json: %v", err)
	}
	want := `{
  "ratio": 1.0,
  "big": 18446744073709551615,
  "small": 7,
  "half": 0.5
}
`
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Fatalf("json mismatch (-want +got):\n%s", diff)
	}

	yamlOut, err := document.EncodeYAML(node)
	if err != nil {
		t.Fatalf("encode yaml: %v", err)
	}
	wantYAML := "ratio: 1.0\nbig: 18446744073709551615\nsmall: 7\nhalf: 0.5\n"
	if diff := cmp.Diff(wantYAML, string(yamlOut)); diff != "" {
		t.Fatalf("yaml mismatch (-want +got):\n%s", diff)
	}
}

func TestSameScalar_ComparesNumbersByValue(t *testing.T) {
	t.Parallel()

	input, err := document.DecodeJSON([]byte(`{"v": 1.0, "s": "1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	v, _ := input.Get("v")
	s, _ := input.Get("s")
	if !document.SameScalar(v, document.Scalar(1)) || !document.SameScalar(v, document.Scalar(1.0)) {
		t.Fatalf("1.0 should equal 1")
	}
	if document.SameScalar(v, document.Scalar(2)) {
		t.Fatalf("1.0 should not equal 2")
	}
	if !document.SameScalar(s, document.Scalar(1)) {
		t.Fatalf("string and number with the same text should match")
	}
}
