package render

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-protoconv/pkg/document"
)

var (
	// ErrUnregistered reports a special variable with no registered function.
	ErrUnregistered = errors.New("render: special function not registered")
	// ErrNotString reports a special function result that is not a string.
	ErrNotString = errors.New("render: special function returned a non-string value")
	// ErrTooDeep reports a template nested beyond the configured depth.
	ErrTooDeep = errors.New("render: maximum render depth exceeded")
)

// RenderError reports a failure while rendering one node. It aborts only the
// conversion it occurred in.
type RenderError struct {
	Path     document.Path
	Variable string
	Err      error
}

func (e *RenderError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("render: %s: variable %q: %v", e.Path, e.Variable, e.Err)
	}
	return fmt.Sprintf("render: %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
