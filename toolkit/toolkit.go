// Package toolkit is the authoring API for tool units.
//
// A unit is a single Go source file in the tools directory. It can expose
// tools in four ways, and may combine them:
//
//   - annotate exported functions with a //tool:meta directive
//   - list bare functions in a package variable: var Tools = []any{...}
//   - list explicit specs: var ToolSpecs = []toolkit.Spec{...}
//   - define func Register(r toolkit.Registrar) error and call r.Add
//
// Units are interpreted at load time and may import this package and the
// standard library.
package toolkit

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// ImportPath is the path units use to import this package.
const ImportPath = "github.com/olgasafonova/tooldock-mcp-server/toolkit"

// Spec describes one tool explicitly.
type Spec struct {
	// Func is the callable. Required.
	Func any

	// Name overrides the function's own name.
	Name string

	// Title is the human-readable tool title for annotations.
	Title string

	// Description overrides the function's doc comment.
	Description string

	// Tags are free-form labels; duplicates are collapsed.
	Tags []string

	// Exclude lists optional parameters hidden from clients.
	Exclude []string

	// ParamNames names positional parameters in order. Interpreted
	// functions registered from a callback carry no parameter names.
	ParamNames []string

	// ReadOnly indicates the tool doesn't modify state
	ReadOnly bool

	// Destructive indicates the tool can delete or overwrite data
	Destructive bool

	// Idempotent indicates repeated calls have the same effect
	Idempotent bool

	// OpenWorld indicates the tool accesses external resources
	OpenWorld bool

	// Enabled set to false skips the spec. Nil means enabled.
	Enabled *bool
}

// IsEnabled reports whether the spec should be considered at all.
func (s Spec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Check reports whether the spec is well formed: a non-nil function and, if
// set, a name that is not blank.
func (s Spec) Check() error {
	if s.Func == nil {
		return ErrNoFunc
	}
	v := reflect.ValueOf(s.Func)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("%w: got %T", ErrNotFunc, s.Func)
	}
	if v.IsNil() {
		return ErrNoFunc
	}
	if s.Name != "" && strings.TrimSpace(s.Name) == "" {
		return ErrBlankName
	}
	return nil
}

var (
	// ErrNoFunc is returned for a spec without a function.
	ErrNoFunc = errors.New("spec has no function")

	// ErrNotFunc is returned when Func is not a function value.
	ErrNotFunc = errors.New("spec func is not a function")

	// ErrBlankName is returned when the name is only whitespace.
	ErrBlankName = errors.New("spec name is blank")
)

// Enable returns a pointer for Spec.Enabled.
func Enable(v bool) *bool {
	return &v
}

// Registrar is handed to a unit's Register function.
type Registrar interface {
	Add(spec Spec) error
}

// Recorder is a Registrar that buffers well-formed specs. Malformed specs are
// refused with an error and not recorded.
type Recorder struct {
	mu    sync.Mutex
	specs []Spec
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Add records spec if it is well formed.
func (r *Recorder) Add(spec Spec) error {
	if err := spec.Check(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = append(r.specs, spec)
	return nil
}

// Specs returns the recorded specs in call order.
func (r *Recorder) Specs() []Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Spec, len(r.specs))
	copy(out, r.specs)
	return out
}
