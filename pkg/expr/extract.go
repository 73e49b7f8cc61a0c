package expr

import (
	"regexp"
	"strings"
)

// Capture matches a rendered scalar against the program's literal parts and
// returns the text found at each reference position, keyed by variable name.
// The first occurrence of a name wins. Programs evaluated by pongo2 cannot be
// inverted and never match.
func (p *Program) Capture(value string) (map[string]string, bool) {
	if p == nil || p.tpl != nil || len(p.Refs) == 0 {
		return nil, false
	}
	var pattern strings.Builder
	pattern.WriteString(`^`)
	var names []string
	for _, seg := range p.Segments {
		if seg.Ref == nil {
			pattern.WriteString(regexp.QuoteMeta(seg.Literal))
			continue
		}
		pattern.WriteString(`(.*?)`)
		names = append(names, seg.Ref.Name)
	}
	pattern.WriteString(`$`)
	re, err := regexp.Compile("(?s)" + pattern.String())
	if err != nil {
		return nil, false
	}
	match := re.FindStringSubmatch(value)
	if match == nil {
		return nil, false
	}
	out := make(map[string]string, len(names))
	for i, name := range names {
		if _, ok := out[name]; !ok {
			out[name] = match[i+1]
		}
	}
	return out, true
}
