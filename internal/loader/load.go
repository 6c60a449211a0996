package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime/debug"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/olgasafonova/tooldock-mcp-server/toolkit"
)

// Symbols exposes the toolkit package to interpreted units.
var Symbols = interp.Exports{
	toolkit.ImportPath + "/toolkit": {
		"Spec":         reflect.ValueOf((*toolkit.Spec)(nil)),
		"Registrar":    reflect.ValueOf((*toolkit.Registrar)(nil)),
		"Recorder":     reflect.ValueOf((*toolkit.Recorder)(nil)),
		"NewRecorder":  reflect.ValueOf(toolkit.NewRecorder),
		"Enable":       reflect.ValueOf(toolkit.Enable),
		"ImportPath":   reflect.ValueOf(toolkit.ImportPath),
		"ErrNoFunc":    reflect.ValueOf(&toolkit.ErrNoFunc).Elem(),
		"ErrNotFunc":   reflect.ValueOf(&toolkit.ErrNotFunc).Elem(),
		"ErrBlankName": reflect.ValueOf(&toolkit.ErrBlankName).Elem(),
	},
}

var (
	registrarType = reflect.TypeFor[toolkit.Registrar]()
	errorType     = reflect.TypeFor[error]()
)

// PanicError is returned when unit code panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Load reads and interprets the unit at path. id is the unit identifier used
// in errors and descriptors. Load returns when the unit is ready or ctx is
// done; in the latter case the interpreter is abandoned.
func Load(ctx context.Context, id, path string) (*Unit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	sc, err := scanSource(path, src)
	if err != nil {
		return nil, err
	}

	i, err := interpret(ctx, string(src))
	if err != nil {
		return nil, err
	}

	u := &Unit{
		ID:      id,
		Path:    path,
		Package: sc.pkg,
	}
	if err := u.resolve(i, sc); err != nil {
		return nil, err
	}
	return u, nil
}

func interpret(ctx context.Context, src string) (*interp.Interpreter, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if err := i.Use(Symbols); err != nil {
		return nil, fmt.Errorf("failed to load toolkit: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		_, err := i.EvalWithContext(ctx, src)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("evaluation failed: %w", err)
		}
		return i, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (u *Unit) resolve(i *interp.Interpreter, sc *scan) error {
	symbol := func(name string) (reflect.Value, error) {
		return i.Eval(sc.pkg + "." + name)
	}

	var annotated []Func
	for _, ident := range sc.order {
		info := sc.funcs[ident]
		if info.directive == "" {
			continue
		}
		meta, err := ParseMeta(info.directive)
		if err != nil {
			u.Problems = append(u.Problems, Problem{Name: ident, Err: fmt.Errorf("invalid %s directive: %w", Directive, err)})
			continue
		}
		v, err := symbol(ident)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", ident, err)
		}
		f := sc.hint(ident)
		f.Value = v
		f.Meta = meta
		annotated = append(annotated, f)
	}
	if len(annotated) > 0 {
		u.Sources = append(u.Sources, Source{Kind: KindAnnotated, Funcs: annotated})
	}

	if sc.toolsVar {
		v, err := symbol(ToolsVar)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", ToolsVar, err)
		}
		if k := v.Kind(); k != reflect.Slice && k != reflect.Array {
			u.Problems = append(u.Problems, Problem{Name: ToolsVar, Err: fmt.Errorf("%s must be a slice, got %s", ToolsVar, v.Type())})
		} else {
			funcs := make([]Func, 0, v.Len())
			for n := 0; n < v.Len(); n++ {
				var f Func
				if n < len(sc.toolsHints) {
					f = sc.hint(sc.toolsHints[n])
				}
				f.Value = unwrap(v.Index(n))
				if fv, ok := topLevel(sc, f.Ident, symbol); ok {
					f.Value = fv
				}
				funcs = append(funcs, f)
			}
			u.Sources = append(u.Sources, Source{Kind: KindFuncList, Funcs: funcs})
		}
	}

	if sc.specsVar {
		v, err := symbol(ToolSpecsVar)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", ToolSpecsVar, err)
		}
		specs, ok := v.Interface().([]toolkit.Spec)
		if !ok {
			u.Problems = append(u.Problems, Problem{Name: ToolSpecsVar, Err: fmt.Errorf("%s must be []toolkit.Spec, got %s", ToolSpecsVar, v.Type())})
		} else {
			entries := make([]SpecEntry, 0, len(specs))
			for n, spec := range specs {
				var hint Func
				if n < len(sc.specsHints) {
					hint = sc.hint(sc.specsHints[n])
				}
				if fv, ok := topLevel(sc, hint.Ident, symbol); ok {
					hint.Value = fv
				}
				entries = append(entries, SpecEntry{Spec: spec, Hint: hint})
			}
			u.Sources = append(u.Sources, Source{Kind: KindSpecList, Specs: entries})
		}
	}

	if sc.hasRegister {
		v, err := symbol(RegisterName)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", RegisterName, err)
		}
		fn, err := callback(v)
		if err != nil {
			u.Problems = append(u.Problems, Problem{Name: RegisterName, Err: err})
		} else {
			u.Sources = append(u.Sources, Source{Kind: KindCallback, Register: fn})
		}
	}
	return nil
}

// topLevel resolves ident when it names an exported top-level function of
// the unit. Values read back through an []any carry the interpreter's own
// representation; the direct symbol is always a callable func value.
func topLevel(sc *scan, ident string, symbol func(string) (reflect.Value, error)) (reflect.Value, bool) {
	if _, ok := sc.funcs[ident]; !ok {
		return reflect.Value{}, false
	}
	v, err := symbol(ident)
	if err != nil || v.Kind() != reflect.Func {
		return reflect.Value{}, false
	}
	return v, true
}

func unwrap(v reflect.Value) reflect.Value {
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// callback adapts func(toolkit.Registrar) [error] to a RegisterFunc.
func callback(v reflect.Value) (RegisterFunc, error) {
	t := v.Type()
	if t.Kind() != reflect.Func || t.NumIn() != 1 || !registrarType.AssignableTo(t.In(0)) ||
		t.NumOut() > 1 || (t.NumOut() == 1 && !t.Out(0).Implements(errorType)) {
		return nil, fmt.Errorf("%s must be func(toolkit.Registrar) error, got %s", RegisterName, t)
	}

	return func(ctx context.Context, r toolkit.Registrar) error {
		done := make(chan error, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					done <- &PanicError{Value: p, Stack: debug.Stack()}
				}
			}()
			out := v.Call([]reflect.Value{reflect.ValueOf(&r).Elem()})
			if len(out) == 1 && !out[0].IsNil() {
				err, _ := out[0].Interface().(error)
				done <- err
				return
			}
			done <- nil
		}()

		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("%s: %w", RegisterName, err)
			}
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", RegisterName, ctx.Err())
		}
	}, nil
}

// IsPanic reports whether err came from a panic in unit code.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
