// Package loader reads a tool unit from disk, interprets it, and exposes the
// objects the unit exports for each export pattern.
package loader

import (
	"context"
	"fmt"
	"reflect"

	"github.com/olgasafonova/tooldock-mcp-server/toolkit"
)

// Kind identifies an export pattern.
type Kind int

const (
	// KindAnnotated covers exported functions carrying a //tool:meta directive.
	KindAnnotated Kind = iota
	// KindFuncList covers the package variable Tools.
	KindFuncList
	// KindSpecList covers the package variable ToolSpecs.
	KindSpecList
	// KindCallback covers the package function Register.
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindAnnotated:
		return "annotated"
	case KindFuncList:
		return "func-list"
	case KindSpecList:
		return "spec-list"
	case KindCallback:
		return "callback"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Specificity orders patterns for attribution: a higher value names a tool
// more explicitly. Callbacks are not ranked.
func (k Kind) Specificity() int {
	switch k {
	case KindAnnotated:
		return 1
	case KindFuncList:
		return 2
	case KindSpecList:
		return 3
	default:
		return 0
	}
}

// Func is an exported function value together with what the unit's source
// says about it.
type Func struct {
	Ident      string        // Go identifier; empty when not statically known
	Value      reflect.Value // may be invalid or not a function
	Doc        string        // doc comment with directives stripped
	ParamNames []string      // declared parameter names, in order
	Meta       Meta          // directive metadata, KindAnnotated only
}

// SpecEntry is a toolkit.Spec plus the source hints for its function. When
// the spec's Func is a plain identifier, Hint.Value holds that function.
type SpecEntry struct {
	Spec toolkit.Spec
	Hint Func
}

// Source is one export pattern found in a unit. Exactly the fields that
// belong to Kind are set.
type Source struct {
	Kind     Kind
	Funcs    []Func      // KindAnnotated, KindFuncList
	Specs    []SpecEntry // KindSpecList
	Register RegisterFunc
}

// RegisterFunc runs a unit's Register callback against r. It returns when the
// callback returns or ctx is done, whichever is first.
type RegisterFunc func(ctx context.Context, r toolkit.Registrar) error

// Problem is an export that exists but has the wrong shape.
type Problem struct {
	Name string
	Err  error
}

// Unit is a loaded tool unit.
type Unit struct {
	ID       string // file name relative to the tools directory
	Path     string
	Package  string
	Sources  []Source
	Problems []Problem
}

// Source returns the unit's source of the given kind.
func (u *Unit) Source(kind Kind) (Source, bool) {
	for _, s := range u.Sources {
		if s.Kind == kind {
			return s, true
		}
	}
	return Source{}, false
}
