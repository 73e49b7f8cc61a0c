package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	protoconv "github.com/goliatone/go-protoconv"
	"github.com/goliatone/go-protoconv/pkg/config"
	"github.com/goliatone/go-protoconv/pkg/functions"
	"github.com/goliatone/go-protoconv/pkg/match"
	"github.com/goliatone/go-protoconv/pkg/orchestrator"
	"github.com/goliatone/go-protoconv/pkg/render"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr, surveyPrompter{}))
}

type options struct {
	templates   string
	source      string
	target      string
	input       string
	output      string
	configPath  string
	interactive bool
	logLevel    string
	report      bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("protoconv-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.templates, "templates", "templates", "directory holding protocol templates")
	fs.StringVar(&opts.source, "source", "", "source protocol family")
	fs.StringVar(&opts.target, "target", "", "target protocol family")
	fs.StringVar(&opts.input, "input", "-", "input document path (- reads stdin)")
	fs.StringVar(&opts.output, "output", "", "output file (stdout if empty)")
	fs.StringVar(&opts.configPath, "config", "", "TOML configuration file")
	fs.BoolVar(&opts.interactive, "interactive", false, "prompt for missing families")
	fs.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.BoolVar(&opts.report, "report", false, "print the template load report and match summary")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, prompt prompter) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.logLevel))
	if err != nil {
		fmt.Fprintf(stderr, "invalid log level %q\n", opts.logLevel)
		return 2
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen, NoColor: true}).
		Level(level).With().Timestamp().Logger()

	cfg := config.Default()
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
		if err != nil {
			logger.Error().Err(err).Msg("load config")
			return 1
		}
	}

	registry := render.NewRegistry()
	if err := functions.Register(registry); err != nil {
		logger.Error().Err(err).Msg("register functions")
		return 1
	}

	orch, report, err := protoconv.NewFromFS(protoconv.Setup{
		Templates: os.DirFS(opts.templates),
		Config:    &cfg,
		Registry:  registry,
		Logger:    &logger,
	})
	if err != nil {
		logger.Error().Err(err).Str("templates", opts.templates).Msg("load templates")
		return 1
	}
	if opts.report {
		for _, f := range report.Files {
			if f.Err != nil {
				fmt.Fprintf(stderr, "%-8s %-10s %s: %v\n", f.Status, f.ID, f.Path, f.Err)
				continue
			}
			fmt.Fprintf(stderr, "%-8s %-10s %s\n", f.Status, f.ID, f.Path)
		}
	}

	families := orch.Templates().Families()
	if opts.interactive {
		if opts.source == "" {
			if opts.source, err = prompt.Select(ctx, "Source protocol family", families); err != nil {
				logger.Error().Err(err).Msg("select source family")
				return 1
			}
		}
		if opts.target == "" {
			if opts.target, err = prompt.Select(ctx, "Target protocol family", families); err != nil {
				logger.Error().Err(err).Msg("select target family")
				return 1
			}
		}
	}
	if opts.target == "" {
		fmt.Fprintf(stderr, "target family is required (known: %s)\n", strings.Join(families, ", "))
		return 2
	}

	data, err := readInput(opts.input, stdin)
	if err != nil {
		logger.Error().Err(err).Msg("read input")
		return 1
	}

	res := orch.Convert(ctx, orchestrator.Request{
		SourceFamily: opts.source,
		TargetFamily: opts.target,
		Input:        data,
	})
	for _, w := range res.Warnings {
		logger.Warn().Str("conversion", res.ConversionID).Msg(w)
	}
	if opts.report && res.Candidate != nil {
		fmt.Fprintln(stderr, match.Report(*res.Candidate))
	}
	if !res.Success {
		logger.Error().Err(res.Err).Str("stage", string(res.Stage)).Msg("conversion failed")
		return 1
	}

	if opts.output != "" {
		if err := os.WriteFile(opts.output, res.Encoded, 0o644); err != nil {
			logger.Error().Err(err).Msg("write output")
			return 1
		}
		logger.Info().Str("path", opts.output).Str("target", res.TargetID).Msg("output written")
		return 0
	}
	if _, err := stdout.Write(res.Encoded); err != nil {
		return 1
	}
	return 0
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
