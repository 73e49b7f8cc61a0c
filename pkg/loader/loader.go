// Package loader reads protocol templates from a filesystem. Templates that
// fail to load are excluded and reported; they never abort the whole load.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-protoconv/pkg/expr"
	"github.com/goliatone/go-protoconv/pkg/template"
)

// Status is the load outcome of one file.
type Status string

const (
	StatusLoaded   Status = "loaded"
	StatusExcluded Status = "excluded"
)

// FileReport describes the outcome for one template file.
type FileReport struct {
	Path     string
	ID       string
	Family   string
	Status   Status
	Err      error
	Warnings []string
}

// Report lists per-file outcomes in walk order.
type Report struct {
	Files []FileReport
}

// Loaded returns the files that produced a template.
func (r *Report) Loaded() []FileReport { return r.filter(StatusLoaded) }

// Excluded returns the files that failed to load.
func (r *Report) Excluded() []FileReport { return r.filter(StatusExcluded) }

func (r *Report) filter(status Status) []FileReport {
	if r == nil {
		return nil
	}
	var out []FileReport
	for _, f := range r.Files {
		if f.Status == status {
			out = append(out, f)
		}
	}
	return out
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for load events.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithEngine sets the expression engine templates compile against.
func WithEngine(engine *expr.Engine) Option {
	return func(l *Loader) {
		if engine != nil {
			l.engine = engine
		}
	}
}

// Loader builds template sets from JSON and YAML files.
type Loader struct {
	logger zerolog.Logger
	engine *expr.Engine
}

// New constructs a Loader.
func New(options ...Option) *Loader {
	l := &Loader{logger: zerolog.Nop()}
	for _, opt := range options {
		if opt != nil {
			opt(l)
		}
	}
	if l.engine == nil {
		l.engine = expr.New()
	}
	return l
}

// LoadDir loads templates below dir.
func (l *Loader) LoadDir(dir string) (*template.Set, *Report, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("loader: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("loader: %s is not a directory", dir)
	}
	return l.LoadFS(os.DirFS(dir))
}

// LoadFS walks fsys and parses every .json, .yaml and .yml file. The
// protocol id is the file name without extension; the family is the id
// prefix before "-", or the parent directory name when the id has none.
// The returned error covers walk failures only.
func (l *Loader) LoadFS(fsys fs.FS) (*template.Set, *Report, error) {
	report := &Report{}
	if fsys == nil {
		set, err := template.NewSet()
		return set, report, err
	}

	var templates []*template.Template
	seen := map[string]string{}

	err := fs.WalkDir(fsys, ".", func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isTemplateFile(p) {
			return nil
		}

		id, family := identify(p)
		file := FileReport{Path: p, ID: id, Family: family}

		tpl, err := l.loadFile(fsys, p, id, family)
		if err == nil {
			if prev, dup := seen[id]; dup {
				err = fmt.Errorf("loader: duplicate template id %q (already loaded from %s)", id, prev)
			}
		}
		if err != nil {
			file.Status = StatusExcluded
			file.Err = err
			l.logger.Warn().Err(err).Str("template", id).Str("path", p).Msg("template excluded")
			report.Files = append(report.Files, file)
			return nil
		}

		seen[id] = p
		file.Status = StatusLoaded
		file.Warnings = append([]string(nil), tpl.Warnings...)
		for _, w := range tpl.Warnings {
			l.logger.Warn().Str("template", id).Msg(w)
		}
		l.logger.Debug().Str("template", id).Str("family", tpl.Family).Int("variables", tpl.Variables.Len()).Msg("template loaded")
		templates = append(templates, tpl)
		report.Files = append(report.Files, file)
		return nil
	})
	if err != nil {
		return nil, report, fmt.Errorf("loader: walk: %w", err)
	}

	set, err := template.NewSet(templates...)
	if err != nil {
		return nil, report, fmt.Errorf("loader: %w", err)
	}
	l.logger.Info().Int("loaded", len(templates)).Int("excluded", len(report.Excluded())).Msg("templates loaded")
	return set, report, nil
}

func (l *Loader) loadFile(fsys fs.FS, p, id, family string) (*template.Template, error) {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, &template.LoadError{TemplateID: id, Err: err}
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, &template.LoadError{TemplateID: id, Err: fmt.Errorf("file %s is empty", p)}
	}
	return template.Parse(id, data, template.WithFamily(family), template.WithEngine(l.engine))
}

func identify(p string) (id, family string) {
	base := path.Base(p)
	id = strings.TrimSuffix(base, path.Ext(base))
	if family = template.FamilyOf(id); family != "" {
		return id, family
	}
	dir := path.Base(path.Dir(p))
	if dir == "." || dir == "/" {
		return id, ""
	}
	return dir + "-" + id, dir
}

func isTemplateFile(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
