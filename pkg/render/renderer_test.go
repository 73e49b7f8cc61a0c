package render_test

import (
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-protoconv/pkg/convctx"
	"github.com/goliatone/go-protoconv/pkg/document"
	"github.com/goliatone/go-protoconv/pkg/expr"
	"github.com/goliatone/go-protoconv/pkg/extract"
	"github.com/goliatone/go-protoconv/pkg/index"
	"github.com/goliatone/go-protoconv/pkg/render"
	"github.com/goliatone/go-protoconv/pkg/template"
)

type inputArrays struct {
	input *document.Node
	tpl   *template.Template
}

func (a inputArrays) Elements(dyn index.DynamicArray) ([]*document.Node, bool) {
	node, ok := document.Lookup(a.input, dyn.Path)
	if !ok || !node.IsSequence() {
		return nil, false
	}
	return node.Items, true
}

func (a inputArrays) ElementVariables(dyn index.DynamicArray, element *document.Node) map[string]any {
	return extract.ElementValues(a.tpl, dyn.Path, element)
}

func positionRegistry(t *testing.T) *render.Registry {
	t.Helper()
	reg := render.NewRegistry()
	reg.MustRegister("progress", func(ctx convctx.Context) (any, error) {
		p, ok := ctx.Progress()
		if !ok {
			return "", nil
		}
		return p.String(), nil
	})
	reg.MustRegister("is_last", func(ctx convctx.Context) (any, error) {
		return strconv.FormatBool(ctx.IsLast()), nil
	})
	reg.MustRegister("array_index", func(ctx convctx.Context) (any, error) {
		i, _ := ctx.ArrayIndex()
		return strconv.Itoa(i), nil
	})
	return reg
}

func mustTemplate(t *testing.T, id, raw string) *template.Template {
	t.Helper()
	tpl, err := template.Parse(id, []byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return tpl
}

func TestRender_DynamicArrayProgress(t *testing.T) {
	t.Parallel()

	tpl := mustTemplate(t, "B-1", `title: "{{ title | upper }}"
items:
  - {# array_dynamic: true #}
  - name: "{{ name }}"
    index: "{{ __array_index }}"
    progress: "{{ __progress }}"
    is_last: "{{ __is_last }}"
`)
	input := document.FromValue(map[string]any{
		"items": []any{
			map[string]any{"name": "a"},
			map[string]any{"name": "b"},
			map[string]any{"name": "c"},
		},
	})
	before := tpl.Root.Clone()

	r := render.New(expr.New(), positionRegistry(t))
	res, err := r.Render(render.Request{
		Template:  tpl,
		Context:   convctx.New(input),
		Variables: map[string]any{"title": "contacts"},
		Arrays:    inputArrays{input: input, tpl: tpl},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	want := map[string]any{
		"title": "CONTACTS",
		"items": []any{
			map[string]any{"name": "a", "index": "0", "progress": "1/3 (33.3%)", "is_last": "false"},
			map[string]any{"name": "b", "index": "1", "progress": "2/3 (66.7%)", "is_last": "false"},
			map[string]any{"name": "c", "index": "2", "progress": "3/3 (100.0%)", "is_last": "true"},
		},
	}
	if diff := cmp.Diff(want, res.Root.Interface()); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(before.Interface(), tpl.Root.Interface()); diff != "" {
		t.Fatalf("template mutated (-want +got):\n%s", diff)
	}
}

func TestRender_ElementCountMatchesInput(t *testing.T) {
	t.Parallel()

	tpl := mustTemplate(t, "B-1", "items:\n  - {# array_dynamic: true #}\n  - v: \"{{ v }}\"\n")
	r := render.New(nil, nil)
	for _, n := range []int{0, 1, 5} {
		var items []any
		for i := 0; i < n; i++ {
			items = append(items, map[string]any{"v": fmt.Sprint(i)})
		}
		input := document.FromValue(map[string]any{"items": append([]any{}, items...)})
		res, err := r.Render(render.Request{Template: tpl, Context: convctx.New(input), Arrays: inputArrays{input: input, tpl: tpl}})
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		got, _ := res.Root.Get("items")
		if got.Len() != n {
			t.Fatalf("items = %d, want %d", got.Len(), n)
		}
	}
}

func TestRender_MissingArrayRendersEmptyWithWarning(t *testing.T) {
	t.Parallel()

	tpl := mustTemplate(t, "B-1", "items:\n  - {# array_dynamic: true #}\n  - v: \"{{ v }}\"\n")
	input := document.FromValue(map[string]any{"other": "x"})
	res, err := render.New(nil, nil).Render(render.Request{Template: tpl, Context: convctx.New(input), Arrays: inputArrays{input: input, tpl: tpl}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	items, _ := res.Root.Get("items")
	if !items.IsSequence() || items.Len() != 0 || len(res.Warnings) != 1 {
		t.Fatalf("items = %+v warnings = %v", items, res.Warnings)
	}
}

func TestRender_FailureKeepsEarlierWarnings(t *testing.T) {
	t.Parallel()

	tpl := mustTemplate(t, "B-1", "items:\n  - {# array_dynamic: true #}\n  - v: \"{{ v }}\"\nsid: \"{{ __unknown }}\"\n")
	input := document.FromValue(map[string]any{"other": "x"})
	res, err := render.New(nil, nil).Render(render.Request{Template: tpl, Context: convctx.New(input), Arrays: inputArrays{input: input, tpl: tpl}})
	if !errors.Is(err, render.ErrUnregistered) {
		t.Fatalf("err = %v, want ErrUnregistered", err)
	}
	if res == nil || res.Root != nil {
		t.Fatalf("partial result = %+v", res)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v, want the missing array warning", res.Warnings)
	}
}

func TestRender_LiteralsKeepTheirType(t *testing.T) {
	t.Parallel()

	tpl := mustTemplate(t, "C-1", "priority: 3\nenabled: true\nname: \"{{ name }}\"\n")
	res, err := render.New(nil, nil).Render(render.Request{
		Template:  tpl,
		Context:   convctx.New(nil),
		Variables: map[string]any{"name": "张三"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := map[string]any{"priority": int64(3), "enabled": true, "name": "张三"}
	if diff := cmp.Diff(want, res.Root.Interface()); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
}

type label string

func (l label) String() string { return "label:" + string(l) }

func TestRender_SpecialFunctionFailures(t *testing.T) {
	t.Parallel()

	reg := render.NewRegistry()
	reg.MustRegister("stringer", func(convctx.Context) (any, error) { return label("x"), nil })
	reg.MustRegister("number", func(convctx.Context) (any, error) { return 42, nil })
	reg.MustRegister("boom", func(convctx.Context) (any, error) { panic("boom") })
	reg.MustRegister("fails", func(convctx.Context) (any, error) { return nil, errors.New("backend down") })
	r := render.New(nil, reg)

	ok := mustTemplate(t, "C-1", "v: \"{{ __stringer }}\"\n")
	res, err := r.Render(render.Request{Template: ok, Context: convctx.New(nil)})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if v, _ := res.Root.Get("v"); v.Text() != "label:x" {
		t.Fatalf("v = %q", v.Text())
	}

	cases := []struct {
		name   string
		raw    string
		target error
	}{
		{name: "unregistered", raw: "slots:\n  v: \"{{ __unknown }}\"\n", target: render.ErrUnregistered},
		{name: "non-string", raw: "v: \"{{ __number }}\"\n", target: render.ErrNotString},
		{name: "panic", raw: "v: \"{{ __boom }}\"\n"},
		{name: "error", raw: "v: \"{% if true %}{{ __fails }}{% endif %}\"\n"},
	}
	for _, tc := range cases {
		tpl := mustTemplate(t, "C-2", tc.raw)
		_, err := r.Render(render.Request{Template: tpl, Context: convctx.New(nil)})
		var renderErr *render.RenderError
		if !errors.As(err, &renderErr) {
			t.Fatalf("%s: err = %v, want RenderError", tc.name, err)
		}
		if tc.target != nil && !errors.Is(err, tc.target) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.target)
		}
		if renderErr.Variable == "" {
			t.Fatalf("%s: variable not reported: %v", tc.name, err)
		}
	}
}

func TestRender_MaxDepth(t *testing.T) {
	t.Parallel()

	tpl := mustTemplate(t, "C-1", "a:\n  b:\n    c:\n      d: x\n")
	_, err := render.New(nil, nil, render.WithMaxDepth(2)).Render(render.Request{Template: tpl, Context: convctx.New(nil)})
	if !errors.Is(err, render.ErrTooDeep) {
		t.Fatalf("err = %v, want ErrTooDeep", err)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := render.NewRegistry()
	fn := func(convctx.Context) (any, error) { return "", nil }
	if err := reg.RegisterAll(map[string]render.Func{"b": fn, "a": fn}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("a", fn); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := reg.Register(" ", fn); err == nil {
		t.Fatalf("expected empty name error")
	}
	if diff := cmp.Diff([]string{"a", "b"}, reg.List()); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}
	if _, err := reg.Get("c"); !errors.Is(err, render.ErrUnregistered) {
		t.Fatalf("err = %v", err)
	}
}
