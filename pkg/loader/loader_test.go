package loader_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-protoconv/pkg/guard"
	"github.com/goliatone/go-protoconv/pkg/loader"
	"github.com/goliatone/go-protoconv/pkg/template"
	"github.com/goliatone/go-protoconv/pkg/testsupport"
)

func TestLoadFS_Fixtures(t *testing.T) {
	t.Parallel()

	set, report, err := loader.New().LoadFS(testsupport.Templates())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(report.Excluded()) != 0 {
		t.Fatalf("excluded = %+v", report.Excluded())
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, set.Families()); diff != "" {
		t.Fatalf("families mismatch (-want +got):\n%s", diff)
	}
	var ids []string
	for _, tpl := range set.Family("A") {
		ids = append(ids, tpl.ID)
	}
	if diff := cmp.Diff([]string{"A-1", "A-2"}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFS_ExcludesBrokenTemplates(t *testing.T) {
	t.Parallel()

	var unbalanced []string
	for i := 0; i < 4; i++ {
		unbalanced = append(unbalanced, "k"+string(rune('a'+i))+": \"{{ v }}\"")
	}
	unbalanced = append(unbalanced, "x: {{ v", "y: {{ w")

	fsys := fstest.MapFS{
		"A-1.yaml":  {Data: []byte("domain: telephone\nname: \"{{ name }}\"\n")},
		"A-3.yaml":  {Data: []byte("- name: \"{{ name }}\"\n  value: x\n")},
		"A-4.yaml":  {Data: []byte(strings.Join(unbalanced, "\n") + "\n")},
		"A-5.yml":   {Data: []byte("   \n")},
		"C-1.json":  {Data: []byte(`{"tao": "call", "who": "{{ name }}"}`)},
		"notes.txt": {Data: []byte("ignored")},
		"B/7.yaml":  {Data: []byte("intent: \"{{ intent }}\"\n")},
	}

	var logs bytes.Buffer
	set, report, err := loader.New(loader.WithLogger(zerolog.New(&logs))).LoadFS(fsys)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	var loaded []string
	for _, f := range report.Loaded() {
		loaded = append(loaded, f.ID)
	}
	if diff := cmp.Diff([]string{"A-1", "B-7", "C-1"}, loaded); diff != "" {
		t.Fatalf("loaded mismatch (-want +got):\n%s", diff)
	}
	if set.Len() != 3 {
		t.Fatalf("set len = %d", set.Len())
	}
	if tpl, ok := set.Get("B-7"); !ok || tpl.Family != "B" {
		t.Fatalf("directory family not applied: %+v", tpl)
	}

	excluded := map[string]error{}
	for _, f := range report.Excluded() {
		excluded[f.ID] = f.Err
	}
	var structural *template.StructuralParseError
	if !errors.As(excluded["A-3"], &structural) || structural.Line != 1 {
		t.Fatalf("A-3 err = %v", excluded["A-3"])
	}
	var syntaxErr *guard.SyntaxError
	if !errors.As(excluded["A-4"], &syntaxErr) || syntaxErr.Opening != 6 || syntaxErr.Closing != 4 {
		t.Fatalf("A-4 err = %v", excluded["A-4"])
	}
	if msg := excluded["A-4"].Error(); !strings.Contains(msg, "6") || !strings.Contains(msg, "4") {
		t.Fatalf("A-4 message %q", msg)
	}
	var loadErr *template.LoadError
	if !errors.As(excluded["A-5"], &loadErr) {
		t.Fatalf("A-5 err = %v", excluded["A-5"])
	}
	if !strings.Contains(logs.String(), "template excluded") {
		t.Fatalf("missing exclusion log: %s", logs.String())
	}
}

func TestLoadFS_NilFS(t *testing.T) {
	t.Parallel()

	set, report, err := loader.New().LoadFS(nil)
	if err != nil || set.Len() != 0 || len(report.Files) != 0 {
		t.Fatalf("set=%v report=%+v err=%v", set, report, err)
	}
}

func TestLoadDir_Missing(t *testing.T) {
	t.Parallel()

	if _, _, err := loader.New().LoadDir(t.TempDir() + "/missing"); err == nil {
		t.Fatalf("expected error")
	}
}
