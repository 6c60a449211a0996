// Package signature derives tool metadata from Go function types and checks
// it against the rules every registered tool must satisfy.
//
// Inspect is the only place that touches reflection; Validate works on the
// resulting Signature value and has no side effects.
package signature

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	toolerrors "github.com/olgasafonova/tooldock-mcp-server/internal/errors"
)

// ParamKind describes how a parameter is collected from a call.
type ParamKind int

const (
	// Positional is an ordinary function parameter.
	Positional ParamKind = iota
	// Field is an exported field of a single struct argument.
	Field
	// VariadicPositional is a trailing ...T parameter.
	VariadicPositional
	// VariadicKeyword is a map[string]any catch-all parameter.
	VariadicKeyword
)

func (k ParamKind) String() string {
	switch k {
	case Positional:
		return "positional"
	case Field:
		return "field"
	case VariadicPositional:
		return "variadic-positional"
	case VariadicKeyword:
		return "variadic-keyword"
	default:
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
}

// Param is one tool parameter.
type Param struct {
	Name     string
	Kind     ParamKind
	Type     string // semantic type; "" when it cannot be determined
	Optional bool
	Excluded bool

	GoType reflect.Type
	Arg    int   // index into the function's arguments
	Field  []int // field index path when Kind is Field
}

// Signature is the call shape of a candidate function.
type Signature struct {
	Params []Param

	// Return is the semantic type of the tool value. ReturnNote explains a
	// missing return type.
	Return     string
	ReturnNote string
	ReturnGo   reflect.Type

	TakesContext bool
	ReturnsError bool

	// Struct is set when parameters are the fields of a single struct
	// argument; StructPtr when that argument is a pointer.
	Struct    reflect.Type
	StructPtr bool
}

var contextType = reflect.TypeFor[context.Context]()

// Inspect derives a Signature from a function type. names supplies positional
// parameter names in order; missing names fall back to argN.
func Inspect(fn reflect.Type, names []string) Signature {
	var sig Signature
	if fn == nil || fn.Kind() != reflect.Func {
		sig.ReturnNote = "not a function"
		return sig
	}

	first := 0
	if fn.NumIn() > 0 && fn.In(0) == contextType {
		sig.TakesContext = true
		first = 1
		if len(names) > 0 {
			names = names[1:]
		}
	}

	inspectReturn(fn, &sig)

	rest := fn.NumIn() - first
	if rest == 1 && !fn.IsVariadic() {
		t := fn.In(first)
		st := t
		if st.Kind() == reflect.Pointer {
			st = st.Elem()
		}
		if st.Kind() == reflect.Struct {
			sig.Struct = st
			sig.StructPtr = t.Kind() == reflect.Pointer
			sig.Params = structParams(st, first)
			return sig
		}
	}

	for i := first; i < fn.NumIn(); i++ {
		k := i - first
		name := fmt.Sprintf("arg%d", k)
		if k < len(names) && names[k] != "" && names[k] != "_" {
			name = names[k]
		}
		t := fn.In(i)
		p := Param{Name: name, GoType: t, Arg: i}
		switch {
		case fn.IsVariadic() && i == fn.NumIn()-1:
			p.Kind = VariadicPositional
			p.Type = TypeOf(t.Elem())
			p.Optional = true
		case isKeywordBag(t):
			p.Kind = VariadicKeyword
			p.Type = Object
			p.Optional = true
		default:
			p.Kind = Positional
			p.Type = TypeOf(t)
			p.Optional = t.Kind() == reflect.Pointer
		}
		sig.Params = append(sig.Params, p)
	}
	return sig
}

func inspectReturn(fn reflect.Type, sig *Signature) {
	n := fn.NumOut()
	switch {
	case n == 0:
		sig.ReturnNote = "function returns no value"
		return
	case n == 1 && fn.Out(0) == errorType:
		sig.ReturnsError = true
		sig.ReturnNote = "function returns only an error"
		return
	case n == 2 && fn.Out(1) != errorType, n > 2:
		sig.ReturnNote = fmt.Sprintf("function returns %d values, want a value and an optional error", n)
		return
	}
	sig.ReturnsError = n == 2
	sig.ReturnGo = fn.Out(0)
	sig.Return = TypeOf(sig.ReturnGo)
	switch sig.Return {
	case Any:
		sig.ReturnNote = fmt.Sprintf("return type %s is unconstrained", sig.ReturnGo)
	case "":
		sig.ReturnNote = fmt.Sprintf("return type %s is not serializable", sig.ReturnGo)
	}
}

func structParams(st reflect.Type, arg int) []Param {
	var params []Param
	for _, f := range reflect.VisibleFields(st) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" && opts == "" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		params = append(params, Param{
			Name:     name,
			Kind:     Field,
			Type:     TypeOf(f.Type),
			Optional: f.Type.Kind() == reflect.Pointer || slices.Contains(strings.Split(opts, ","), "omitempty"),
			GoType:   f.Type,
			Arg:      arg,
			Field:    f.Index,
		})
	}
	return params
}

// Validate checks sig against the registration rules in order and returns a
// copy with the excluded parameters marked. The first failing rule wins:
// missing return type, variadic parameter, missing parameter type, exclusion
// of a required (or unknown) parameter.
func Validate(sig Signature, exclude []string) (Signature, error) {
	if !Concrete(sig.Return) {
		note := sig.ReturnNote
		if note == "" {
			note = "return type is missing"
		}
		return Signature{}, toolerrors.NewSignatureError(toolerrors.MissingReturnType, "", note)
	}

	for _, p := range sig.Params {
		switch p.Kind {
		case VariadicPositional:
			return Signature{}, toolerrors.NewSignatureError(toolerrors.VariadicParameterNotAllowed, p.Name,
				"variadic positional parameters are not allowed")
		case VariadicKeyword:
			return Signature{}, toolerrors.NewSignatureError(toolerrors.VariadicParameterNotAllowed, p.Name,
				"catch-all keyword parameters are not allowed")
		}
	}

	for _, p := range sig.Params {
		if !Concrete(p.Type) {
			msg := fmt.Sprintf("type %s has no concrete semantic type", p.GoType)
			if p.GoType == nil {
				msg = "type is missing"
			}
			return Signature{}, toolerrors.NewSignatureError(toolerrors.MissingParameterType, p.Name, msg)
		}
	}

	out := sig
	out.Params = slices.Clone(sig.Params)
	for _, name := range exclude {
		i := slices.IndexFunc(out.Params, func(p Param) bool { return p.Name == name })
		if i < 0 {
			return Signature{}, toolerrors.NewSignatureError(toolerrors.ExcludeOnRequiredParameter, name,
				"excluded name is not a parameter")
		}
		if !out.Params[i].Optional {
			return Signature{}, toolerrors.NewSignatureError(toolerrors.ExcludeOnRequiredParameter, name,
				"only optional parameters can be excluded")
		}
		out.Params[i].Excluded = true
	}
	return out, nil
}

// Check is Inspect followed by Validate.
func Check(fn reflect.Type, names, exclude []string) (Signature, error) {
	return Validate(Inspect(fn, names), exclude)
}
