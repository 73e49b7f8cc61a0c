package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-protoconv/pkg/config"
	"github.com/goliatone/go-protoconv/pkg/extract"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default invalid: %v", err)
	}
	if cfg.MatchThreshold != 0.5 || cfg.MissingVariablePolicy != extract.PolicyWarn || cfg.SpecialPrefix != "__" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFile_OverlaysDefinedKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "protoconv.toml")
	data := "schema_weight = 2.0\nmatch_threshold = 0.3\nmissing_variable_policy = \"hard-fail\"\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := config.Default()
	want.SchemaWeight = 2
	want.MatchThreshold = 0.3
	want.MissingVariablePolicy = extract.PolicyFail
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"negative weight": "coverage_weight = -1.0\n",
		"threshold range": "match_threshold = 1.5\n",
		"bad policy":      "missing_variable_policy = \"ignore\"\n",
		"unknown key":     "colour = \"blue\"\n",
		"zero depth":      "max_render_depth = 0\n",
		"all zero":        "schema_weight = 0.0\ncoverage_weight = 0.0\ncompleteness_weight = 0.0\n",
	}
	for name, data := range cases {
		if _, err := config.Parse(data); err == nil || !strings.Contains(err.Error(), "load protoconv config") {
			t.Fatalf("%s: err = %v", name, err)
		}
	}
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()

	if _, err := config.LoadFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
