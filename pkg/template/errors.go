package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// StructuralParseError reports guarded template text that the host grammar
// rejected, or that parsed into something other than a mapping.
type StructuralParseError struct {
	TemplateID string
	Line       int
	Column     int
	Message    string
	Err        error
}

func (e *StructuralParseError) Error() string {
	var b strings.Builder
	b.WriteString("template")
	if e.TemplateID != "" {
		b.WriteString(" ")
		b.WriteString(e.TemplateID)
	}
	b.WriteString(": structural parse error")
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d column %d", e.Line, e.Column)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *StructuralParseError) Unwrap() error { return e.Err }

// LoadError wraps any other failure to build a template.
type LoadError struct {
	TemplateID string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("template %s: %v", e.TemplateID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// structuralError converts a decoder failure into a positioned error. The
// column is the first non-blank character of the reported line.
func structuralError(id, text string, err error) *StructuralParseError {
	out := &StructuralParseError{TemplateID: id, Err: err, Message: strings.TrimPrefix(err.Error(), "document: decode yaml: ")}
	m := yamlLinePattern.FindStringSubmatch(err.Error())
	if m == nil {
		return out
	}
	line, convErr := strconv.Atoi(m[1])
	if convErr != nil || line <= 0 {
		return out
	}
	out.Line = line
	out.Column = 1
	lines := strings.Split(text, "\n")
	if line <= len(lines) {
		content := lines[line-1]
		out.Column = len([]rune(content)) - len([]rune(strings.TrimLeft(content, " \t"))) + 1
	}
	return out
}
