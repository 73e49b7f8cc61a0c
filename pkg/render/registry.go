package render

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-protoconv/pkg/convctx"
)

// Func computes a special variable from the current conversion context. It
// must return a string or a fmt.Stringer.
type Func func(ctx convctx.Context) (any, error)

// Registry stores special functions by name (without the special prefix).
// It is injected into the Renderer; populate it before conversions start.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry instance.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]Func),
	}
}

// Register adds a function by name. Duplicate names return an error.
func (r *Registry) Register(name string, fn Func) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("render: function name is required")
	}
	if fn == nil {
		return fmt.Errorf("render: function %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("render: function %q already registered", name)
	}

	r.funcs[name] = fn
	return nil
}

// MustRegister panics on registration failure. Useful for init-time wiring.
func (r *Registry) MustRegister(name string, fn Func) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// RegisterAll adds every function of funcs, stopping at the first failure.
func (r *Registry) RegisterAll(funcs map[string]Func) error {
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.Register(name, funcs[name]); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a function by name.
func (r *Registry) Get(name string) (Func, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnregistered, name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnregistered, name)
	}
	return fn, nil
}

// List returns a sorted list of function names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a function is registered.
func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.funcs[name]
	return ok
}
