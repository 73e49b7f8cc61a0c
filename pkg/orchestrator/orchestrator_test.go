package orchestrator_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-protoconv/pkg/config"
	"github.com/goliatone/go-protoconv/pkg/document"
	"github.com/goliatone/go-protoconv/pkg/expr"
	"github.com/goliatone/go-protoconv/pkg/extract"
	"github.com/goliatone/go-protoconv/pkg/functions"
	"github.com/goliatone/go-protoconv/pkg/match"
	"github.com/goliatone/go-protoconv/pkg/orchestrator"
	"github.com/goliatone/go-protoconv/pkg/render"
	"github.com/goliatone/go-protoconv/pkg/template"
	"github.com/goliatone/go-protoconv/pkg/testsupport"
)

const dialInput = `{"domain": "telephone", "action": "DIAL", "slots": {"category": "手机", "name": "张三", "raw_name": "张三"}}`

const playlistInput = `domain: music
action: PLAY_LIST
songs:
  - title: one
    artist: ann
  - title: two
    artist: bob
  - title: three
    artist: cat
`

func newOrchestrator(t *testing.T, options ...orchestrator.Option) *orchestrator.Orchestrator {
	t.Helper()

	engine := expr.New()
	reg := render.NewRegistry()
	if err := functions.Register(reg); err != nil {
		t.Fatalf("register functions: %v", err)
	}
	base := []orchestrator.Option{
		orchestrator.WithTemplates(testsupport.MustLoadSet(t, engine)),
		orchestrator.WithEngine(engine),
		orchestrator.WithRegistry(reg),
	}
	return orchestrator.New(append(base, options...)...)
}

func TestConvert_DialFromAToC(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	res := orch.Convert(testsupport.Context(), orchestrator.Request{
		SourceFamily: "A",
		TargetFamily: "C",
		Input:        []byte(dialInput),
	})
	if !res.Success {
		t.Fatalf("conversion failed at %s: %v", res.Stage, res.Err)
	}
	if res.SourceID != "A-1" || res.TargetID != "C-1" || res.Format != document.FormatJSON {
		t.Fatalf("source=%s target=%s format=%s", res.SourceID, res.TargetID, res.Format)
	}
	if !strings.HasPrefix(res.ConversionID, "conv_") {
		t.Fatalf("conversion id = %q", res.ConversionID)
	}

	want := map[string]any{
		"tao": "phone.contact.call",
		"slots": []any{
			map[string]any{"name": "PERSON", "value": "张三", "label": "O"},
			map[string]any{"name": "PHONE_TYPE", "value": "手机", "label": "PHONE_TYPE_MOBILE"},
		},
	}
	if diff := testsupport.CompareGolden(want, res.Output.Interface()); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}

	wantJSON := `{
  "tao": "phone.contact.call",
  "slots": [
    {
      "name": "PERSON",
      "value": "张三",
      "label": "O"
    },
    {
      "name": "PHONE_TYPE",
      "value": "手机",
      "label": "PHONE_TYPE_MOBILE"
    }
  ]
}
`
	if diff := cmp.Diff(wantJSON, string(res.Encoded)); diff != "" {
		t.Fatalf("encoded mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"phone_type": "手机", "person": "张三", "raw_name": "张三"}, res.Variables); diff != "" {
		t.Fatalf("variables mismatch (-want +got):\n%s", diff)
	}
}

func TestConvert_DynamicArrayProgress(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	res := orch.Convert(context.Background(), orchestrator.Request{
		SourceFamily: "A",
		TargetFamily: "C",
		Input:        []byte(playlistInput),
	})
	if !res.Success {
		t.Fatalf("conversion failed at %s: %v", res.Stage, res.Err)
	}
	if res.SourceID != "A-2" || res.TargetID != "C-2" || res.Format != document.FormatYAML {
		t.Fatalf("source=%s target=%s format=%s", res.SourceID, res.TargetID, res.Format)
	}

	tracks, ok := res.Output.Get("tracks")
	if !ok || tracks.Len() != 3 {
		t.Fatalf("tracks = %+v", tracks)
	}
	want := []any{
		map[string]any{"name": "one", "by": "ANN", "progress": "1/3 (33.3%)", "is_last": "false"},
		map[string]any{"name": "two", "by": "BOB", "progress": "2/3 (66.7%)", "is_last": "false"},
		map[string]any{"name": "three", "by": "CAT", "progress": "3/3 (100.0%)", "is_last": "true"},
	}
	if diff := cmp.Diff(want, tracks.Interface()); diff != "" {
		t.Fatalf("tracks mismatch (-want +got):\n%s", diff)
	}

	decoded, format, err := document.Decode(res.Encoded)
	if err != nil || format != document.FormatYAML {
		t.Fatalf("re-decode: format=%s err=%v", format, err)
	}
	if diff := cmp.Diff(res.Output.Interface(), decoded.Interface()); diff != "" {
		t.Fatalf("yaml round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestConvert_NoMatchIsCaptured(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	orch := newOrchestrator(t, orchestrator.WithLogger(zerolog.New(&logs)))
	res := orch.Convert(context.Background(), orchestrator.Request{
		SourceFamily: "A",
		TargetFamily: "C",
		Input:        []byte(`{"domain": "weather", "city": "Lisbon"}`),
	})
	if res.Success || res.Stage != orchestrator.StageMatch {
		t.Fatalf("result = %+v", res)
	}
	var noMatch *match.NoMatchError
	if !errors.As(res.Err, &noMatch) {
		t.Fatalf("err = %v, want NoMatchError", res.Err)
	}
	if len(noMatch.Candidates) != 2 || len(noMatch.Reasons("A-1")) == 0 {
		t.Fatalf("candidates = %+v", noMatch.Candidates)
	}
	if !strings.Contains(logs.String(), "conversion failed") {
		t.Fatalf("missing failure log: %s", logs.String())
	}
}

func TestConvert_UnregisteredSpecialIsRenderError(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t, orchestrator.WithRegistry(render.NewRegistry()))
	res := orch.Convert(context.Background(), orchestrator.Request{
		SourceFamily: "A",
		TargetFamily: "C",
		Input:        []byte(dialInput),
	})
	if res.Success || res.Stage != orchestrator.StageRender {
		t.Fatalf("result = %+v", res)
	}
	var renderErr *render.RenderError
	if !errors.As(res.Err, &renderErr) || !errors.Is(res.Err, render.ErrUnregistered) {
		t.Fatalf("err = %v", res.Err)
	}
	if res.Output != nil || res.SourceID != "A-1" || res.TargetID != "C-1" {
		t.Fatalf("partial result = %+v", res)
	}
}

func TestConvert_RenderFailureKeepsWarnings(t *testing.T) {
	t.Parallel()

	source := testsupport.MustLoadTemplate(t, "A-7", "domain: telephone\nname: \"{{ person }}\"\n")
	target := testsupport.MustLoadTemplate(t, "C-7", "items:\n  - {# array_dynamic: true #}\n  - v: \"{{ v }}\"\nsid: \"{{ __unknown }}\"\n")
	set, err := template.NewSet(source, target)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	orch := orchestrator.New(orchestrator.WithTemplates(set), orchestrator.WithRegistry(render.NewRegistry()))
	res := orch.Convert(context.Background(), orchestrator.Request{
		SourceFamily: "A",
		TargetFamily: "C",
		Input:        []byte(`{"domain": "telephone", "name": "张三"}`),
	})
	if res.Success || res.Stage != orchestrator.StageRender || !errors.Is(res.Err, render.ErrUnregistered) {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "rendered empty") {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

func TestConvert_MissingVariablePolicy(t *testing.T) {
	t.Parallel()

	input := `{"domain": "telephone", "action": "DIAL", "slots": {"category": "座机", "name": "王五"}}`

	warn := newOrchestrator(t)
	res := warn.Convert(context.Background(), orchestrator.Request{SourceFamily: "A", TargetFamily: "C", Input: []byte(input)})
	if !res.Success {
		t.Fatalf("warn policy failed: %v", res.Err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "raw_name") {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	if v := res.Variables["raw_name"]; v != "" {
		t.Fatalf("raw_name = %v", v)
	}

	cfg := config.Default()
	cfg.MissingVariablePolicy = extract.PolicyFail
	strict := newOrchestrator(t, orchestrator.WithConfig(cfg))
	res = strict.Convert(context.Background(), orchestrator.Request{SourceFamily: "A", TargetFamily: "C", Input: []byte(input)})
	var missing *extract.MissingVariableError
	if res.Success || res.Stage != orchestrator.StageExtract || !errors.As(res.Err, &missing) {
		t.Fatalf("result = %+v", res)
	}
	if missing.Variable != "raw_name" {
		t.Fatalf("missing variable = %s", missing.Variable)
	}

	cfg = config.Default()
	cfg.MissingVariablePolicy = "hard-fail"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	hard := newOrchestrator(t, orchestrator.WithConfig(cfg))
	res = hard.Convert(context.Background(), orchestrator.Request{SourceFamily: "A", TargetFamily: "C", Input: []byte(input)})
	if res.Success || res.Stage != orchestrator.StageExtract || !errors.As(res.Err, &missing) {
		t.Fatalf("hard-fail result = %+v", res)
	}
}

func TestConvert_DirectMode(t *testing.T) {
	t.Parallel()

	input := `{"tao": "phone.contact.call", "slots": [{"name": "PERSON", "value": "李四", "label": "X"}, {"name": "PHONE_TYPE", "value": "座机", "label": "Y"}]}`
	orch := newOrchestrator(t)
	res := orch.Convert(context.Background(), orchestrator.Request{SourceFamily: "C", TargetFamily: "C", Input: []byte(input)})
	if !res.Success {
		t.Fatalf("conversion failed at %s: %v", res.Stage, res.Err)
	}
	if res.SourceID != "C-1" || res.TargetID != "C-1" {
		t.Fatalf("source=%s target=%s", res.SourceID, res.TargetID)
	}
	want := map[string]any{
		"tao": "phone.contact.call",
		"slots": []any{
			map[string]any{"name": "PERSON", "value": "李四", "label": "O"},
			map[string]any{"name": "PHONE_TYPE", "value": "座机", "label": "unknown"},
		},
	}
	if diff := cmp.Diff(want, res.Output.Interface()); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestConvert_TargetRankedByCoverageWithoutPair(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	res := orch.Convert(context.Background(), orchestrator.Request{SourceFamily: "A", TargetFamily: "B", Input: []byte(dialInput)})
	if !res.Success {
		t.Fatalf("conversion failed at %s: %v", res.Stage, res.Err)
	}
	if res.TargetID != "B-5" {
		t.Fatalf("target = %s, want B-5", res.TargetID)
	}
	want := map[string]any{
		"intent": "call 张三",
		"contact": map[string]any{
			"name": "张三",
			"type": "手机",
			"sid":  "PHONE_TYPE_LABEL",
		},
	}
	if diff := cmp.Diff(want, res.Output.Interface()); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

func TestConvert_DocumentRequest(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	res := orch.Convert(context.Background(), orchestrator.Request{
		SourceFamily: "A",
		TargetFamily: "C",
		Document:     testsupport.MustDecode(t, dialInput),
		Format:       document.FormatYAML,
	})
	if !res.Success {
		t.Fatalf("conversion failed: %v", res.Err)
	}
	if !strings.HasPrefix(string(res.Encoded), "tao: phone.contact.call\n") {
		t.Fatalf("encoded = %s", res.Encoded)
	}
}

func TestConvert_InputFailures(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := map[string]struct {
		ctx context.Context
		req orchestrator.Request
	}{
		"no input":      {ctx: context.Background(), req: orchestrator.Request{SourceFamily: "A", TargetFamily: "C"}},
		"no target":     {ctx: context.Background(), req: orchestrator.Request{SourceFamily: "A", Input: []byte(dialInput)}},
		"cancelled":     {ctx: cancelled, req: orchestrator.Request{SourceFamily: "A", TargetFamily: "C", Input: []byte(dialInput)}},
		"unknown items": {ctx: context.Background(), req: orchestrator.Request{SourceFamily: "X", TargetFamily: "Y", Input: []byte(dialInput)}},
	}
	for name, tc := range cases {
		res := orch.Convert(tc.ctx, tc.req)
		if res.Success || res.Err == nil {
			t.Fatalf("%s: expected failure, got %+v", name, res)
		}
	}

	bad := config.Default()
	bad.MatchThreshold = 2
	res := newOrchestrator(t, orchestrator.WithConfig(bad)).Convert(context.Background(), orchestrator.Request{
		SourceFamily: "A", TargetFamily: "C", Input: []byte(dialInput),
	})
	if res.Success || res.Stage != orchestrator.StageInput {
		t.Fatalf("invalid config result = %+v", res)
	}
}

func TestConvertBatch_PreservesOrder(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t)
	reqs := []orchestrator.Request{
		{SourceFamily: "A", TargetFamily: "C", Input: []byte(dialInput)},
		{SourceFamily: "A", TargetFamily: "C", Input: []byte(playlistInput)},
		{SourceFamily: "A", TargetFamily: "C", Input: []byte(`{"domain": "weather"}`)},
		{SourceFamily: "A", TargetFamily: "B", Input: []byte(dialInput)},
	}
	results := orch.ConvertBatch(context.Background(), reqs, 2)

	var got []string
	ids := map[string]bool{}
	for _, res := range results {
		if res.Success {
			got = append(got, res.TargetID)
			ids[res.ConversionID] = true
		} else {
			got = append(got, "fail:"+string(res.Stage))
		}
	}
	if diff := cmp.Diff([]string{"C-1", "C-2", "fail:match", "B-5"}, got); diff != "" {
		t.Fatalf("batch mismatch (-want +got):\n%s", diff)
	}
	if len(ids) != 3 {
		t.Fatalf("conversion ids reused: %v", ids)
	}
	if len(orch.ConvertBatch(context.Background(), nil, 4)) != 0 {
		t.Fatalf("empty batch returned results")
	}
}
