// Package match scores protocol templates against an input document and
// selects the best one deterministically.
package match

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/goliatone/go-protoconv/pkg/document"
	"github.com/goliatone/go-protoconv/pkg/index"
	"github.com/goliatone/go-protoconv/pkg/template"
)

const scoreEpsilon = 1e-9

// Config holds the scoring weights and the compatibility threshold.
type Config struct {
	SchemaWeight       float64
	CoverageWeight     float64
	CompletenessWeight float64
	// Threshold is the minimum schema compatibility a candidate needs to
	// stay in the pool.
	Threshold float64
}

// DefaultConfig weighs the three signals equally with a 0.5 threshold.
func DefaultConfig() Config {
	return Config{SchemaWeight: 1, CoverageWeight: 1, CompletenessWeight: 1, Threshold: 0.5}
}

// Validate rejects negative or all-zero weights and thresholds outside [0,1].
func (c Config) Validate() error {
	if c.SchemaWeight < 0 || c.CoverageWeight < 0 || c.CompletenessWeight < 0 {
		return errors.New("match: weights must not be negative")
	}
	if c.SchemaWeight+c.CoverageWeight+c.CompletenessWeight == 0 {
		return errors.New("match: at least one weight must be positive")
	}
	if c.Threshold < 0 || c.Threshold > 1 || math.IsNaN(c.Threshold) {
		return fmt.Errorf("match: threshold %v outside [0,1]", c.Threshold)
	}
	return nil
}

// Candidate is the scoring outcome for one template. Candidates are produced
// fresh for every Match call.
type Candidate struct {
	Template     *template.Template
	Score        float64
	Schema       float64
	Coverage     float64
	Completeness float64
	// Matched lists required and variable paths found in the input.
	Matched []document.Path
	// Failures describes required paths the input did not satisfy.
	Failures []Failure
	// UnresolvedOptional lists variable paths absent from the input.
	UnresolvedOptional []document.Path
	// UnresolvedVariables lists regular variables with no resolvable path.
	UnresolvedVariables []string
	Disqualified        bool
}

// ID returns the candidate template id.
func (c Candidate) ID() string {
	if c.Template == nil {
		return ""
	}
	return c.Template.ID
}

// Matcher selects templates. It holds no per-call state and is safe for
// concurrent use.
type Matcher struct {
	cfg Config
}

// New builds a Matcher. An invalid config falls back to DefaultConfig.
func New(cfg Config) *Matcher {
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	return &Matcher{cfg: cfg}
}

// Config returns the active configuration.
func (m *Matcher) Config() Config { return m.cfg }

// Match scores every candidate and returns the best one that clears the
// threshold, or a *NoMatchError describing why each candidate failed.
func (m *Matcher) Match(candidates []*template.Template, input *document.Node) (Candidate, error) {
	ranked := m.Rank(candidates, input)
	for _, c := range ranked {
		if !c.Disqualified {
			return c, nil
		}
	}
	return Candidate{}, &NoMatchError{Threshold: m.cfg.Threshold, Candidates: ranked}
}

// Rank scores every candidate and orders them: qualified before
// disqualified, higher score first, then fewer unresolved optional paths,
// then the naturally smaller id.
func (m *Matcher) Rank(candidates []*template.Template, input *document.Node) []Candidate {
	ix := index.Build(input)
	out := make([]Candidate, 0, len(candidates))
	for _, tpl := range candidates {
		if tpl == nil {
			continue
		}
		out = append(out, m.Score(tpl, ix))
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func less(a, b Candidate) bool {
	if a.Disqualified != b.Disqualified {
		return !a.Disqualified
	}
	if math.Abs(a.Score-b.Score) > scoreEpsilon {
		return a.Score > b.Score
	}
	if len(a.UnresolvedOptional) != len(b.UnresolvedOptional) {
		return len(a.UnresolvedOptional) < len(b.UnresolvedOptional)
	}
	return template.CompareIDs(a.ID(), b.ID()) < 0
}

// Score evaluates a single template against an indexed input.
func (m *Matcher) Score(tpl *template.Template, input *index.Index) Candidate {
	c := Candidate{Template: tpl}

	required := tpl.Shape.Required
	satisfied := 0
	for _, req := range required {
		if f, ok := checkRequirement(input, req); ok {
			satisfied++
			c.Matched = append(c.Matched, req.Path)
		} else {
			c.Failures = append(c.Failures, f)
		}
	}
	c.Schema = ratio(satisfied, len(required))

	var declared []document.Path
	seen := map[string]bool{}
	for _, v := range tpl.Variables.Regular() {
		for _, p := range v.Paths {
			if key := index.Key(p); !seen[key] {
				seen[key] = true
				declared = append(declared, p)
			}
		}
	}
	covered := 0
	for _, p := range declared {
		if resolvable(input, p) {
			covered++
			c.Matched = append(c.Matched, p)
		} else {
			c.UnresolvedOptional = append(c.UnresolvedOptional, p)
		}
	}
	c.Coverage = ratio(covered, len(declared))

	all := tpl.Variables.All()
	complete := 0
	for _, v := range all {
		if v.Special {
			complete++
			continue
		}
		found := false
		for _, p := range v.Paths {
			if resolvable(input, p) {
				found = true
				break
			}
		}
		if found {
			complete++
		} else {
			c.UnresolvedVariables = append(c.UnresolvedVariables, v.Name)
		}
	}
	c.Completeness = ratio(complete, len(all))

	c.Score = m.composite(c)
	c.Disqualified = c.Schema < m.cfg.Threshold-scoreEpsilon
	return c
}

func (m *Matcher) composite(c Candidate) float64 {
	total := m.cfg.SchemaWeight + m.cfg.CoverageWeight + m.cfg.CompletenessWeight
	if total == 0 {
		return (c.Schema + c.Coverage + c.Completeness) / 3
	}
	return (c.Schema*m.cfg.SchemaWeight + c.Coverage*m.cfg.CoverageWeight + c.Completeness*m.cfg.CompletenessWeight) / total
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(n) / float64(total)
}

// checkRequirement reports whether input satisfies req. Wildcard paths must
// hold for every element of the input sequence; an empty sequence satisfies
// them trivially.
func checkRequirement(input *index.Index, req index.Requirement) (Failure, bool) {
	if idx := req.Path.WildcardIndex(); idx >= 0 {
		seq, ok := input.Lookup(req.Path[:idx])
		if !ok || !seq.IsSequence() {
			return Failure{Path: req.Path, Expected: req.Kind, Missing: true}, false
		}
		rest := req.Path[idx+1:]
		for i, item := range seq.Items {
			node, ok := document.Lookup(item, rest)
			if f, ok := checkNode(req, req.Path[:idx].At(i).Join(rest), node, ok); !ok {
				return f, false
			}
		}
		return Failure{}, true
	}
	node, ok := input.Lookup(req.Path)
	return checkNode(req, req.Path, node, ok)
}

func checkNode(req index.Requirement, at document.Path, node *document.Node, found bool) (Failure, bool) {
	if !found || node == nil {
		return Failure{Path: at, Expected: req.Kind, Missing: true}, false
	}
	if req.Kind != document.KindInvalid && node.Kind != req.Kind {
		return Failure{Path: at, Expected: req.Kind, Actual: node.Kind}, false
	}
	if req.Literal != nil && node.IsScalar() && !document.SameScalar(node, req.Literal) {
		return Failure{
			Path:     at,
			Expected: req.Kind,
			Actual:   node.Kind,
			Want:     req.Literal.Text(),
			Got:      node.Text(),
			Mismatch: true,
		}, false
	}
	return Failure{}, true
}

// resolvable reports whether a variable path can be read from the input.
func resolvable(input *index.Index, path document.Path) bool {
	if idx := path.WildcardIndex(); idx >= 0 {
		seq, ok := input.Lookup(path[:idx])
		if !ok || !seq.IsSequence() {
			return false
		}
		rest := path[idx+1:]
		for _, item := range seq.Items {
			if _, ok := document.Lookup(item, rest); !ok {
				return false
			}
		}
		return true
	}
	_, ok := input.Lookup(path)
	return ok
}
