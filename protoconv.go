// Package protoconv converts slot-filling documents between protocol
// families using declarative templates. The root package wires the loader
// and orchestrator for callers that want a single entry point.
package protoconv

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-protoconv/pkg/config"
	"github.com/goliatone/go-protoconv/pkg/expr"
	"github.com/goliatone/go-protoconv/pkg/loader"
	"github.com/goliatone/go-protoconv/pkg/orchestrator"
	"github.com/goliatone/go-protoconv/pkg/render"
)

// Request aliases orchestrator.Request.
type Request = orchestrator.Request

// Result aliases orchestrator.Result.
type Result = orchestrator.Result

// NewOrchestrator exposes the orchestrator constructor from the top-level
// module.
func NewOrchestrator(options ...orchestrator.Option) *orchestrator.Orchestrator {
	return orchestrator.New(options...)
}

// Setup collects what NewFromFS needs. Zero values fall back to the default
// configuration, an empty registry and a no-op logger.
type Setup struct {
	Templates fs.FS
	Config    *config.Config
	Registry  *render.Registry
	Logger    *zerolog.Logger
	// Options are appended after the wiring NewFromFS performs.
	Options []orchestrator.Option
}

// NewFromFS loads templates with an engine matching the configured special
// prefix and returns an orchestrator over them plus the load report.
// Templates that fail to load are listed in the report, not returned as
// errors.
func NewFromFS(setup Setup) (*orchestrator.Orchestrator, *loader.Report, error) {
	cfg := config.Default()
	if setup.Config != nil {
		cfg = *setup.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("protoconv: %w", err)
	}
	logger := zerolog.Nop()
	if setup.Logger != nil {
		logger = *setup.Logger
	}

	engine := expr.New(expr.WithSpecialPrefix(cfg.SpecialPrefix))
	set, report, err := loader.New(loader.WithEngine(engine), loader.WithLogger(logger)).LoadFS(setup.Templates)
	if err != nil {
		return nil, report, fmt.Errorf("protoconv: %w", err)
	}

	options := []orchestrator.Option{
		orchestrator.WithTemplates(set),
		orchestrator.WithEngine(engine),
		orchestrator.WithConfig(cfg),
		orchestrator.WithLogger(logger),
	}
	if setup.Registry != nil {
		options = append(options, orchestrator.WithRegistry(setup.Registry))
	}
	options = append(options, setup.Options...)
	return orchestrator.New(options...), report, nil
}

// Convert is a one-shot helper: it loads templates from fsys and converts
// input from the source family to the target family.
func Convert(ctx context.Context, fsys fs.FS, registry *render.Registry, source, target string, input []byte) (*Result, error) {
	orch, _, err := NewFromFS(Setup{Templates: fsys, Registry: registry})
	if err != nil {
		return nil, err
	}
	return orch.Convert(ctx, Request{SourceFamily: source, TargetFamily: target, Input: input}), nil
}
