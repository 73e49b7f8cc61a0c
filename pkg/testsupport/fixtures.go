// Package testsupport holds fixtures and golden helpers shared by package
// tests. Helpers fail the test on error to keep call sites short.
package testsupport

import (
	"context"
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-protoconv/pkg/document"
	"github.com/goliatone/go-protoconv/pkg/expr"
	"github.com/goliatone/go-protoconv/pkg/loader"
	"github.com/goliatone/go-protoconv/pkg/template"
)

//go:embed testdata/templates
var templatesFS embed.FS

// Templates returns the telephony and playlist fixture templates (families
// A, B and C).
func Templates() fs.FS {
	sub, err := fs.Sub(templatesFS, "testdata/templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// MustLoadSet loads the fixture templates and fails when any is excluded.
func MustLoadSet(t *testing.T, engine *expr.Engine) *template.Set {
	t.Helper()

	set, report, err := loader.New(loader.WithEngine(engine)).LoadFS(Templates())
	if err != nil {
		t.Fatalf("load fixtures: %v", err)
	}
	for _, f := range report.Excluded() {
		t.Fatalf("fixture %s excluded: %v", f.Path, f.Err)
	}
	return set
}

// MustLoadTemplate parses raw template text.
func MustLoadTemplate(t *testing.T, id, raw string, options ...template.Option) *template.Template {
	t.Helper()

	tpl, err := template.Parse(id, []byte(raw), options...)
	if err != nil {
		t.Fatalf("parse template %s: %v", id, err)
	}
	return tpl
}

// MustDecode parses JSON or YAML text into a tree.
func MustDecode(t *testing.T, raw string) *document.Node {
	t.Helper()

	node, _, err := document.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return node
}

// Context returns a background context for tests.
func Context() context.Context {
	return context.Background()
}

// CompareGolden returns a diff string if the values differ.
func CompareGolden(want, got any) string {
	return cmp.Diff(want, got)
}

// MustReadGolden reads a golden file and returns its raw bytes.
func MustReadGolden(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	return data
}

// WriteMaybeGolden updates a golden file when UPDATE_GOLDENS is set. Returns
// true if the golden was written (test should exit early).
func WriteMaybeGolden(t *testing.T, path string, data []byte) bool {
	t.Helper()
	if os.Getenv("UPDATE_GOLDENS") == "" {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir golden dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
	return true
}
