package match

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-protoconv/pkg/document"
)

// Failure describes one required path an input failed to satisfy.
type Failure struct {
	Path     document.Path
	Expected document.Kind
	Actual   document.Kind
	Missing  bool
	Mismatch bool
	Want     string
	Got      string
}

func (f Failure) String() string {
	switch {
	case f.Missing:
		if f.Expected == document.KindInvalid {
			return fmt.Sprintf("%s: missing", f.Path)
		}
		return fmt.Sprintf("%s: missing %s", f.Path, f.Expected)
	case f.Mismatch:
		return fmt.Sprintf("%s: expected %q, got %q", f.Path, f.Want, f.Got)
	default:
		return fmt.Sprintf("%s: expected %s, got %s", f.Path, f.Expected, f.Actual)
	}
}

// NoMatchError reports that no candidate cleared the compatibility
// threshold. Candidates holds every scored candidate with its failures.
type NoMatchError struct {
	Threshold  float64
	Candidates []Candidate
}

func (e *NoMatchError) Error() string {
	if len(e.Candidates) == 0 {
		return "match: no candidate templates"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "match: no candidate cleared threshold %.2f", e.Threshold)
	for _, c := range e.Candidates {
		fmt.Fprintf(&b, "; %s (schema %.2f", c.ID(), c.Schema)
		for _, f := range c.Failures {
			b.WriteString(", ")
			b.WriteString(f.String())
		}
		b.WriteString(")")
	}
	return b.String()
}

// Reasons returns the failure descriptions for the candidate with the given
// id.
func (e *NoMatchError) Reasons(id string) []string {
	for _, c := range e.Candidates {
		if c.ID() != id {
			continue
		}
		out := make([]string, 0, len(c.Failures))
		for _, f := range c.Failures {
			out = append(out, f.String())
		}
		return out
	}
	return nil
}
