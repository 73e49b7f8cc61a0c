package match

import (
	"fmt"
	"strings"
)

// Report renders a human-readable summary of a candidate's score.
func Report(c Candidate) string {
	var b strings.Builder
	status := "qualified"
	if c.Disqualified {
		status = "disqualified"
	}
	fmt.Fprintf(&b, "template %s: score %.3f (%s)\n", c.ID(), c.Score, status)
	fmt.Fprintf(&b, "  schema       %.3f\n", c.Schema)
	fmt.Fprintf(&b, "  coverage     %.3f\n", c.Coverage)
	fmt.Fprintf(&b, "  completeness %.3f\n", c.Completeness)
	if len(c.Matched) > 0 {
		b.WriteString("  matched:\n")
		for _, p := range c.Matched {
			fmt.Fprintf(&b, "    - %s\n", p)
		}
	}
	if len(c.Failures) > 0 {
		b.WriteString("  failed:\n")
		for _, f := range c.Failures {
			fmt.Fprintf(&b, "    - %s\n", f)
		}
	}
	if len(c.UnresolvedOptional) > 0 {
		b.WriteString("  unresolved:\n")
		for _, p := range c.UnresolvedOptional {
			fmt.Fprintf(&b, "    - %s\n", p)
		}
	}
	return b.String()
}
