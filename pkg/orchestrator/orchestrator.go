package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-protoconv/pkg/config"
	"github.com/goliatone/go-protoconv/pkg/convctx"
	"github.com/goliatone/go-protoconv/pkg/document"
	"github.com/goliatone/go-protoconv/pkg/expr"
	"github.com/goliatone/go-protoconv/pkg/extract"
	"github.com/goliatone/go-protoconv/pkg/index"
	"github.com/goliatone/go-protoconv/pkg/match"
	"github.com/goliatone/go-protoconv/pkg/render"
	"github.com/goliatone/go-protoconv/pkg/template"
)

// Stage names the pipeline step a conversion failed in.
type Stage string

const (
	StageInput         Stage = "input"
	StageMatch         Stage = "match"
	StageResolveTarget Stage = "resolve-target"
	StageExtract       Stage = "extract"
	StageRender        Stage = "render"
	StageTransform     Stage = "transform"
	StageEncode        Stage = "encode"
)

// Option customises the orchestrator configuration.
type Option func(*Orchestrator)

// WithTemplates injects the loaded template set.
func WithTemplates(set *template.Set) Option {
	return func(o *Orchestrator) {
		o.templates = set
	}
}

// WithRegistry injects the special-function registry.
func WithRegistry(registry *render.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = registry
	}
}

// WithConfig overrides the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *Orchestrator) {
		o.cfg = cfg
	}
}

// WithLogger sets the logger for conversion events.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithEngine injects the expression engine. It must be the engine the
// templates were compiled with.
func WithEngine(engine *expr.Engine) Option {
	return func(o *Orchestrator) {
		o.engine = engine
	}
}

// WithTransformer registers transformers that run on the rendered tree
// before encoding, in registration order.
func WithTransformer(transformers ...Transformer) Option {
	return func(o *Orchestrator) {
		for _, t := range transformers {
			if t != nil {
				o.transformers = append(o.transformers, t)
			}
		}
	}
}

// Orchestrator runs conversions. It only reads shared state after New, so a
// single instance serves concurrent Convert calls.
type Orchestrator struct {
	templates     *template.Set
	registry      *render.Registry
	engine        *expr.Engine
	cfg           config.Config
	logger        zerolog.Logger
	transformers  []Transformer
	matcher       *match.Matcher
	extractor     *extract.Extractor
	renderer      *render.Renderer
	initialiseErr error
}

// New constructs an Orchestrator. Missing dependencies fall back to an empty
// registry, the default configuration and a no-op logger.
func New(options ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    config.Default(),
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(o)
	}
	o.applyDefaults()
	return o
}

func (o *Orchestrator) applyDefaults() {
	if err := o.cfg.Validate(); err != nil {
		o.initialiseErr = fmt.Errorf("orchestrator: %w", err)
		return
	}
	o.cfg.MissingVariablePolicy, _ = extract.ParsePolicy(string(o.cfg.MissingVariablePolicy))
	if o.engine == nil {
		o.engine = expr.New(expr.WithSpecialPrefix(o.cfg.SpecialPrefix))
	}
	if o.registry == nil {
		o.registry = render.NewRegistry()
	}
	if o.templates == nil {
		o.templates, _ = template.NewSet()
	}
	o.matcher = match.New(o.cfg.Match())
	o.extractor = extract.New(
		extract.WithPolicy(o.cfg.MissingVariablePolicy),
		extract.WithDefault(o.cfg.MissingDefault),
	)
	o.renderer = render.New(o.engine, o.registry, render.WithMaxDepth(o.cfg.MaxRenderDepth))
}

// Templates returns the template set conversions draw from.
func (o *Orchestrator) Templates() *template.Set { return o.templates }

// Request describes one conversion.
type Request struct {
	SourceFamily string
	TargetFamily string
	// Input holds JSON or YAML bytes. The output uses the same format.
	Input []byte
	// Document bypasses decoding when the caller already holds a tree.
	Document *document.Node
	// Format selects the output format for Document requests.
	Format document.Format
}

// Result is the outcome of one conversion.
type Result struct {
	Success bool
	Output  *document.Node
	Encoded []byte
	Format  document.Format
	Err     error
	Stage   Stage
	// Warnings are ordered, non-fatal findings.
	Warnings     []string
	SourceID     string
	TargetID     string
	Candidate    *match.Candidate
	Variables    map[string]any
	ConversionID string
	Debug        []convctx.DebugEntry
}

func (r *Result) fail(stage Stage, err error) *Result {
	r.Success = false
	r.Stage = stage
	r.Err = err
	return r
}

// Convert matches the input against the source family, pairs the target
// template, extracts variables, renders and encodes the output. It never
// returns nil.
func (o *Orchestrator) Convert(ctx context.Context, req Request) *Result {
	res := o.convert(ctx, req)
	if res.Err != nil {
		o.logger.Warn().Err(res.Err).
			Str("conversion", res.ConversionID).
			Str("stage", string(res.Stage)).
			Str("source_family", req.SourceFamily).
			Str("target_family", req.TargetFamily).
			Msg("conversion failed")
	} else {
		o.logger.Debug().
			Str("conversion", res.ConversionID).
			Str("source", res.SourceID).
			Str("target", res.TargetID).
			Int("warnings", len(res.Warnings)).
			Msg("conversion succeeded")
	}
	return res
}

func (o *Orchestrator) convert(ctx context.Context, req Request) *Result {
	res := &Result{}
	if ctx == nil {
		return res.fail(StageInput, errors.New("orchestrator: context is required"))
	}
	if err := ctx.Err(); err != nil {
		return res.fail(StageInput, err)
	}
	if o.initialiseErr != nil {
		return res.fail(StageInput, o.initialiseErr)
	}
	if req.TargetFamily == "" {
		return res.fail(StageInput, errors.New("orchestrator: target family is required"))
	}

	input, format, err := decodeInput(req)
	if err != nil {
		return res.fail(StageInput, err)
	}
	res.Format = format

	sourceTemplates := o.templates.Family(req.SourceFamily)
	direct := req.SourceFamily == req.TargetFamily || len(sourceTemplates) == 0
	candidates := sourceTemplates
	if direct {
		candidates = o.templates.Family(req.TargetFamily)
	}
	if len(candidates) == 0 {
		return res.fail(StageMatch, fmt.Errorf("orchestrator: no templates registered for family %q", req.TargetFamily))
	}

	selected, err := o.matcher.Match(candidates, input)
	if err != nil {
		return res.fail(StageMatch, err)
	}
	res.Candidate = &selected
	res.SourceID = selected.ID()
	o.logger.Debug().Str("template", selected.ID()).Float64("score", selected.Score).Msg("match selected")

	extraction, err := o.extractor.Extract(selected.Template, input)
	if err != nil {
		return res.fail(StageExtract, err)
	}
	res.Warnings = append(res.Warnings, extraction.Warnings...)

	target := selected.Template
	if !direct {
		target, err = o.resolveTarget(selected.Template, req.TargetFamily, extraction)
		if err != nil {
			return res.fail(StageResolveTarget, err)
		}
	}
	res.TargetID = target.ID

	vars, warnings, err := o.targetVariables(target, extraction)
	res.Variables = vars
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		return res.fail(StageExtract, err)
	}

	root := convctx.New(input,
		convctx.WithFamilies(req.SourceFamily, req.TargetFamily),
		convctx.WithProtocols(selected.ID(), target.ID),
		convctx.WithVariables(vars),
		convctx.WithTotalInputItems(index.Build(input).LargestSequence()),
	)
	res.ConversionID = root.ConversionID

	rendered, err := o.renderer.Render(render.Request{
		Template:  target,
		Context:   root,
		Variables: vars,
		Arrays:    newArraySource(input, selected.Template, target),
	})
	res.Debug = root.Debug()
	if rendered != nil {
		res.Warnings = append(res.Warnings, rendered.Warnings...)
	}
	if err != nil {
		return res.fail(StageRender, err)
	}

	for _, t := range o.transformers {
		if err := t.Transform(ctx, rendered.Root); err != nil {
			return res.fail(StageTransform, fmt.Errorf("orchestrator: transform output: %w", err))
		}
	}
	res.Output = rendered.Root

	encoded, err := document.Encode(rendered.Root, format)
	if err != nil {
		return res.fail(StageEncode, fmt.Errorf("orchestrator: encode output: %w", err))
	}
	res.Encoded = encoded
	res.Success = true
	return res
}

func decodeInput(req Request) (*document.Node, document.Format, error) {
	if req.Document != nil {
		return req.Document, req.Format, nil
	}
	if len(req.Input) == 0 {
		return nil, req.Format, errors.New("orchestrator: input or document is required")
	}
	node, format, err := document.Decode(req.Input)
	if err != nil {
		return nil, format, fmt.Errorf("orchestrator: decode input: %w", err)
	}
	return node, format, nil
}

// resolveTarget picks the target template paired with the matched source
// template, or the target template whose regular variables are best covered
// by what the source offers.
func (o *Orchestrator) resolveTarget(source *template.Template, family string, extraction *extract.Extraction) (*template.Template, error) {
	if tpl, ok := o.templates.Get(template.PairID(source.ID, family)); ok {
		return tpl, nil
	}
	candidates := o.templates.Family(family)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("orchestrator: no templates registered for target family %q", family)
	}

	offered := map[string]bool{}
	for name := range extraction.Values {
		offered[name] = true
	}
	for _, scope := range extraction.Arrays {
		for _, name := range scope.Variables {
			offered[name] = true
		}
	}

	var best *template.Template
	bestScore := -1.0
	for _, tpl := range candidates {
		regular := tpl.Variables.Regular()
		covered := 0
		for _, v := range regular {
			if offered[v.Name] {
				covered++
			}
		}
		score := 1.0
		if len(regular) > 0 {
			score = float64(covered) / float64(len(regular))
		}
		// candidates are in id order, so strict comparison keeps the smaller id
		if score > bestScore {
			best, bestScore = tpl, score
		}
	}
	return best, nil
}

// targetVariables maps the extracted values onto the target's regular
// variables. Array-scoped target variables are resolved per element.
func (o *Orchestrator) targetVariables(target *template.Template, extraction *extract.Extraction) (map[string]any, []string, error) {
	vars := make(map[string]any, len(extraction.Values))
	for name, value := range extraction.Values {
		vars[name] = value
	}
	var warnings []string
	for _, v := range target.Variables.Regular() {
		if v.ArrayScoped {
			continue
		}
		if _, ok := vars[v.Name]; ok {
			continue
		}
		if o.cfg.MissingVariablePolicy == extract.PolicyFail {
			return vars, warnings, &extract.MissingVariableError{TemplateID: target.ID, Variable: v.Name, Paths: v.Paths}
		}
		vars[v.Name] = o.cfg.MissingDefault
		warnings = append(warnings, fmt.Sprintf("orchestrator: target variable %q has no source value, using default %q", v.Name, o.cfg.MissingDefault))
	}
	return vars, warnings, nil
}
