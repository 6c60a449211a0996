package collect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	toolerrors "github.com/olgasafonova/tooldock-mcp-server/internal/errors"
	"github.com/olgasafonova/tooldock-mcp-server/internal/loader"
	"github.com/olgasafonova/tooldock-mcp-server/toolkit"
)

func Add(a, b int) int      { return a + b }
func Mul(a, b int) int      { return a * b }
func SayHello(n string) any { return n }

func newCollector() *Collector {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func fn(ident string, v any, doc string) loader.Func {
	return loader.Func{Ident: ident, Value: reflect.ValueOf(v), Doc: doc, ParamNames: []string{"a", "b"}}
}

func names(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Spec.Name
	}
	return out
}

func kinds(errs []*toolerrors.DiscoveryError) []toolerrors.Kind {
	out := make([]toolerrors.Kind, len(errs))
	for i, e := range errs {
		out[i] = e.Kind
	}
	return out
}

func TestSnakeCase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SayHello", "say_hello"},
		{"Add", "add"},
		{"GetURL", "get_url"},
		{"HTTPGet", "http_get"},
		{"Base64Encode", "base64_encode"},
		{"already_snake", "already_snake"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SnakeCase(tt.in); got != tt.want {
				t.Errorf("SnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCollect_Annotated(t *testing.T) {
	f := fn("Add", Add, "Add sums.")
	f.Meta = loader.Meta{Tags: []string{"math"}, ReadOnly: true}
	g := fn("Mul", Mul, "Mul multiplies.")
	g.Meta = loader.Meta{Name: "times", Description: "Explicit."}

	u := &loader.Unit{ID: "math.go", Sources: []loader.Source{{Kind: loader.KindAnnotated, Funcs: []loader.Func{f, g}}}}
	cands, errs := newCollector().Collect(context.Background(), u)
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if got := names(cands); !reflect.DeepEqual(got, []string{"add", "times"}) {
		t.Fatalf("names = %v, want [add times]", got)
	}
	if cands[0].Spec.Description != "Add sums." {
		t.Errorf("Description = %q, want doc comment", cands[0].Spec.Description)
	}
	if cands[1].Spec.Description != "Explicit." {
		t.Errorf("Description = %q, want explicit description", cands[1].Spec.Description)
	}
	if !cands[0].Spec.ReadOnly || cands[0].Source != loader.KindAnnotated {
		t.Errorf("cands[0] = %+v", cands[0])
	}
	if cands[0].Spec.Func != nil {
		t.Error("Spec.Func should be cleared")
	}
}

func TestCollect_FuncList(t *testing.T) {
	u := &loader.Unit{ID: "list.go", Sources: []loader.Source{{
		Kind: loader.KindFuncList,
		Funcs: []loader.Func{
			fn("Add", Add, ""),
			{Value: reflect.ValueOf(42)},
			{},
			fn("SayHello", SayHello, ""),
		},
	}}}

	cands, errs := newCollector().Collect(context.Background(), u)
	if got := names(cands); !reflect.DeepEqual(got, []string{"add", "say_hello"}) {
		t.Errorf("names = %v, want [add say_hello]", got)
	}
	if got := kinds(errs); !reflect.DeepEqual(got, []toolerrors.Kind{toolerrors.InvalidExport, toolerrors.InvalidExport}) {
		t.Errorf("error kinds = %v, want two InvalidExport", got)
	}
	if errs[0].Candidate != "Tools[1]" {
		t.Errorf("Candidate = %q, want %q", errs[0].Candidate, "Tools[1]")
	}
}

func TestCollect_SpecList(t *testing.T) {
	u := &loader.Unit{ID: "specs.go", Sources: []loader.Source{{
		Kind: loader.KindSpecList,
		Specs: []loader.SpecEntry{
			{Spec: toolkit.Spec{Func: Add, Name: " adder ", Tags: []string{"math"}}, Hint: fn("Add", Add, "Add doc.")},
			{Spec: toolkit.Spec{Func: Mul}, Hint: fn("Mul", Mul, "Mul doc.")},
			{Spec: toolkit.Spec{Name: "nofunc"}},
			{Spec: toolkit.Spec{Func: Add, Name: "off", Enabled: toolkit.Enable(false)}},
			{Spec: toolkit.Spec{Func: Add, Name: "\t"}},
		},
	}}}

	cands, errs := newCollector().Collect(context.Background(), u)
	if got := names(cands); !reflect.DeepEqual(got, []string{"adder", "mul"}) {
		t.Errorf("names = %v, want [adder mul]", got)
	}
	if cands[0].Spec.Description != "Add doc." {
		t.Errorf("Description = %q, want the doc hint", cands[0].Spec.Description)
	}
	if got := kinds(errs); !reflect.DeepEqual(got, []toolerrors.Kind{toolerrors.InvalidExport, toolerrors.InvalidExport}) {
		t.Errorf("error kinds = %v, want two InvalidExport", got)
	}
}

func TestCollect_Callback(t *testing.T) {
	register := func(ctx context.Context, r toolkit.Registrar) error {
		if err := r.Add(toolkit.Spec{Func: Add, Name: "plus"}); err != nil {
			return err
		}
		if err := r.Add(toolkit.Spec{Func: Mul}); err != nil {
			return err
		}
		return nil
	}
	u := &loader.Unit{ID: "cb.go", Sources: []loader.Source{{Kind: loader.KindCallback, Register: register}}}

	cands, errs := newCollector().Collect(context.Background(), u)
	if got := names(cands); !reflect.DeepEqual(got, []string{"plus"}) {
		t.Errorf("names = %v, want [plus]", got)
	}
	if got := kinds(errs); !reflect.DeepEqual(got, []toolerrors.Kind{toolerrors.InvalidExport}) {
		t.Errorf("error kinds = %v, want one InvalidExport for the unnamed spec", got)
	}
}

func TestCollect_CallbackFailureDiscardsRecordings(t *testing.T) {
	tests := []struct {
		name     string
		register loader.RegisterFunc
		timeout  time.Duration
		want     toolerrors.Kind
	}{
		{
			name: "returned error",
			register: func(ctx context.Context, r toolkit.Registrar) error {
				_ = r.Add(toolkit.Spec{Func: Add, Name: "plus"})
				return errors.New("half way")
			},
			want: toolerrors.ModuleLoadFailure,
		},
		{
			name: "timeout",
			register: func(ctx context.Context, r toolkit.Registrar) error {
				_ = r.Add(toolkit.Spec{Func: Add, Name: "plus"})
				<-ctx.Done()
				return ctx.Err()
			},
			timeout: 20 * time.Millisecond,
			want:    toolerrors.UnitTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.timeout)
				defer cancel()
			}
			u := &loader.Unit{ID: "cb.go", Sources: []loader.Source{{Kind: loader.KindCallback, Register: tt.register}}}
			cands, errs := newCollector().Collect(ctx, u)
			if len(cands) != 0 {
				t.Errorf("cands = %v, want none", names(cands))
			}
			if got := kinds(errs); !reflect.DeepEqual(got, []toolerrors.Kind{tt.want}) {
				t.Errorf("error kinds = %v, want [%s]", got, tt.want)
			}
		})
	}
}

func TestCollect_Attribution(t *testing.T) {
	annotated := fn("Add", Add, "")
	annotated.Meta = loader.Meta{Name: "add"}

	t.Run("same name keeps most specific without error", func(t *testing.T) {
		u := &loader.Unit{ID: "a.go", Sources: []loader.Source{
			{Kind: loader.KindAnnotated, Funcs: []loader.Func{annotated}},
			{Kind: loader.KindFuncList, Funcs: []loader.Func{fn("Add", Add, "")}},
		}}
		cands, errs := newCollector().Collect(context.Background(), u)
		if len(errs) != 0 {
			t.Errorf("errs = %v, want none", errs)
		}
		if len(cands) != 1 || cands[0].Source != loader.KindFuncList {
			t.Errorf("cands = %+v, want only the func-list candidate", cands)
		}
	})

	t.Run("different names report a conflict", func(t *testing.T) {
		u := &loader.Unit{ID: "a.go", Sources: []loader.Source{
			{Kind: loader.KindAnnotated, Funcs: []loader.Func{annotated}},
			{Kind: loader.KindFuncList, Funcs: []loader.Func{fn("Add", Add, "")}},
			{Kind: loader.KindSpecList, Specs: []loader.SpecEntry{
				{Spec: toolkit.Spec{Func: Add, Name: "sum"}, Hint: fn("Add", Add, "")},
			}},
		}}
		cands, errs := newCollector().Collect(context.Background(), u)
		if got := names(cands); !reflect.DeepEqual(got, []string{"sum"}) {
			t.Errorf("names = %v, want [sum]", got)
		}
		if got := kinds(errs); !reflect.DeepEqual(got, []toolerrors.Kind{toolerrors.ConflictingAttribution, toolerrors.ConflictingAttribution}) {
			t.Errorf("error kinds = %v, want two ConflictingAttribution", got)
		}
		if errs[0].Candidate != "sum" {
			t.Errorf("Candidate = %q, want %q", errs[0].Candidate, "sum")
		}
	})

	t.Run("callbacks are not attributed", func(t *testing.T) {
		register := func(ctx context.Context, r toolkit.Registrar) error {
			return r.Add(toolkit.Spec{Func: Add, Name: "plus"})
		}
		u := &loader.Unit{ID: "a.go", Sources: []loader.Source{
			{Kind: loader.KindFuncList, Funcs: []loader.Func{fn("Add", Add, "")}},
			{Kind: loader.KindCallback, Register: register},
		}}
		cands, errs := newCollector().Collect(context.Background(), u)
		if len(errs) != 0 {
			t.Errorf("errs = %v, want none", errs)
		}
		if got := names(cands); !reflect.DeepEqual(got, []string{"add", "plus"}) {
			t.Errorf("names = %v, want [add plus]", got)
		}
	})
}

func TestCollect_Problems(t *testing.T) {
	u := &loader.Unit{ID: "p.go", Problems: []loader.Problem{{Name: "Register", Err: errors.New("bad shape")}}}
	_, errs := newCollector().Collect(context.Background(), u)
	if len(errs) != 1 || errs[0].Kind != toolerrors.InvalidExport || errs[0].Candidate != "Register" {
		t.Errorf("errs = %v, want one InvalidExport for Register", errs)
	}
}
