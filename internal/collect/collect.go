// Package collect turns the exports of a loaded unit into tool candidates.
package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	toolerrors "github.com/olgasafonova/tooldock-mcp-server/internal/errors"
	"github.com/olgasafonova/tooldock-mcp-server/internal/loader"
	"github.com/olgasafonova/tooldock-mcp-server/toolkit"
)

// Candidate is a function proposed as a tool, with its metadata resolved but
// its signature not yet validated.
type Candidate struct {
	// Spec carries the resolved name, description, tags, exclusions,
	// parameter names and hints. Spec.Func is not used.
	Spec   toolkit.Spec
	Func   reflect.Value
	Ident  string // Go identifier, empty for callback registrations
	Source loader.Kind
}

// Collector extracts candidates from units.
type Collector struct {
	logger *slog.Logger
}

// New creates a collector.
func New(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{logger: logger}
}

// Collect returns the unit's candidates in export order (annotated, Tools,
// ToolSpecs, Register) and the problems found along the way. A failing
// Register callback contributes no candidates. ctx bounds the callback.
func (c *Collector) Collect(ctx context.Context, u *loader.Unit) ([]Candidate, []*toolerrors.DiscoveryError) {
	var (
		cands []Candidate
		errs  []*toolerrors.DiscoveryError
	)

	for _, p := range u.Problems {
		errs = append(errs, toolerrors.New(u.ID, toolerrors.InvalidExport, p.Name, p.Err))
	}

	for _, src := range u.Sources {
		var (
			got []Candidate
			bad []*toolerrors.DiscoveryError
		)
		switch src.Kind {
		case loader.KindAnnotated:
			got, bad = c.annotated(u.ID, src.Funcs)
		case loader.KindFuncList:
			got, bad = c.funcList(u.ID, src.Funcs)
		case loader.KindSpecList:
			got, bad = c.specList(u.ID, loader.KindSpecList, src.Specs)
		case loader.KindCallback:
			got, bad = c.callback(ctx, u.ID, src.Register)
		default:
			bad = append(bad, toolerrors.Newf(u.ID, toolerrors.InvalidExport, "", "unknown export kind %s", src.Kind))
		}
		cands = append(cands, got...)
		errs = append(errs, bad...)
	}

	cands, conflicts := c.attribute(u.ID, cands)
	errs = append(errs, conflicts...)
	return cands, errs
}

func (c *Collector) annotated(unit string, funcs []loader.Func) ([]Candidate, []*toolerrors.DiscoveryError) {
	var (
		cands []Candidate
		errs  []*toolerrors.DiscoveryError
	)
	for _, f := range funcs {
		m := f.Meta
		spec := toolkit.Spec{
			Name:        m.Name,
			Title:       m.Title,
			Description: m.Description,
			Tags:        m.Tags,
			Exclude:     m.Exclude,
			ReadOnly:    m.ReadOnly,
			Destructive: m.Destructive,
			Idempotent:  m.Idempotent,
			OpenWorld:   m.OpenWorld,
			Enabled:     m.Enabled,
		}
		cand, err := c.candidate(unit, loader.KindAnnotated, spec, f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if cand != nil {
			cands = append(cands, *cand)
		}
	}
	return cands, errs
}

func (c *Collector) funcList(unit string, funcs []loader.Func) ([]Candidate, []*toolerrors.DiscoveryError) {
	var (
		cands []Candidate
		errs  []*toolerrors.DiscoveryError
	)
	for i, f := range funcs {
		if !isFunc(f.Value) {
			errs = append(errs, toolerrors.Newf(unit, toolerrors.InvalidExport, entryName(loader.ToolsVar, i, f.Ident),
				"entry is not a function (%s)", describe(f.Value)))
			continue
		}
		cand, err := c.candidate(unit, loader.KindFuncList, toolkit.Spec{}, f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if cand != nil {
			cands = append(cands, *cand)
		}
	}
	return cands, errs
}

func (c *Collector) specList(unit string, kind loader.Kind, entries []loader.SpecEntry) ([]Candidate, []*toolerrors.DiscoveryError) {
	var (
		cands []Candidate
		errs  []*toolerrors.DiscoveryError
	)
	for i, e := range entries {
		label := entryName(loader.ToolSpecsVar, i, e.Spec.Name)
		if kind == loader.KindCallback {
			label = entryName(loader.RegisterName, i, e.Spec.Name)
		}
		if err := e.Spec.Check(); err != nil {
			errs = append(errs, toolerrors.New(unit, toolerrors.InvalidExport, label, err))
			continue
		}
		f := e.Hint
		if !isFunc(f.Value) {
			f.Value = reflect.ValueOf(e.Spec.Func)
		}
		cand, err := c.candidate(unit, kind, e.Spec, f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if cand != nil {
			cands = append(cands, *cand)
		}
	}
	return cands, errs
}

func (c *Collector) callback(ctx context.Context, unit string, register loader.RegisterFunc) ([]Candidate, []*toolerrors.DiscoveryError) {
	rec := toolkit.NewRecorder()
	if err := register(ctx, rec); err != nil {
		kind := toolerrors.ModuleLoadFailure
		if errors.Is(err, context.DeadlineExceeded) {
			kind = toolerrors.UnitTimeout
		}
		c.logger.Warn("Register callback failed, discarding its registrations",
			"unit", unit,
			"error", err,
		)
		return nil, []*toolerrors.DiscoveryError{toolerrors.New(unit, kind, loader.RegisterName, err)}
	}

	recorded := rec.Specs()
	entries := make([]loader.SpecEntry, len(recorded))
	for i, s := range recorded {
		entries[i] = loader.SpecEntry{Spec: s}
	}
	return c.specList(unit, loader.KindCallback, entries)
}

// candidate resolves explicit spec fields over the function's own name and
// doc. It returns nil, nil for a disabled spec.
func (c *Collector) candidate(unit string, kind loader.Kind, spec toolkit.Spec, f loader.Func) (*Candidate, *toolerrors.DiscoveryError) {
	label := spec.Name
	if label == "" {
		label = f.Ident
	}

	if !spec.IsEnabled() {
		c.logger.Debug("Skipping disabled tool", "unit", unit, "tool", label, "source", kind.String())
		return nil, nil
	}
	if !isFunc(f.Value) {
		return nil, toolerrors.Newf(unit, toolerrors.InvalidExport, label, "not a function (%s)", describe(f.Value))
	}

	name := strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		name = SnakeCase(f.Ident)
	}
	if name == "" {
		return nil, toolerrors.Newf(unit, toolerrors.InvalidExport, label, "tool name resolves to an empty string")
	}
	spec.Name = name

	if spec.Description == "" {
		spec.Description = f.Doc
	}
	if len(spec.ParamNames) == 0 {
		spec.ParamNames = f.ParamNames
	}
	spec.Func = nil

	return &Candidate{
		Spec:   spec,
		Func:   f.Value,
		Ident:  f.Ident,
		Source: kind,
	}, nil
}

// attribute keeps, for each function exported through more than one static
// pattern, only the candidates from the most specific pattern.
func (c *Collector) attribute(unit string, cands []Candidate) ([]Candidate, []*toolerrors.DiscoveryError) {
	best := make(map[string]loader.Kind)
	for _, cand := range cands {
		if cand.Ident == "" || cand.Source == loader.KindCallback {
			continue
		}
		if k, ok := best[cand.Ident]; !ok || cand.Source.Specificity() > k.Specificity() {
			best[cand.Ident] = cand.Source
		}
	}

	var (
		kept []Candidate
		errs []*toolerrors.DiscoveryError
	)
	for _, cand := range cands {
		k, ok := best[cand.Ident]
		if !ok || cand.Source == loader.KindCallback || cand.Source == k {
			kept = append(kept, cand)
			continue
		}

		winner := winnerName(cands, cand.Ident, k)
		c.logger.Warn("Function exported through several patterns, keeping the most specific",
			"unit", unit,
			"function", cand.Ident,
			"kept", k.String(),
			"dropped", cand.Source.String(),
		)
		if cand.Spec.Name != winner {
			errs = append(errs, toolerrors.Newf(unit, toolerrors.ConflictingAttribution, winner,
				"%s is also exported as %q via %s; keeping %q from %s",
				cand.Ident, cand.Spec.Name, cand.Source, winner, k))
		}
	}
	return kept, errs
}

func winnerName(cands []Candidate, ident string, kind loader.Kind) string {
	for _, c := range cands {
		if c.Ident == ident && c.Source == kind {
			return c.Spec.Name
		}
	}
	return ""
}

func isFunc(v reflect.Value) bool {
	return v.IsValid() && v.Kind() == reflect.Func && !v.IsNil()
}

func describe(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}
	return v.Type().String()
}

func entryName(list string, i int, name string) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%s[%d]", list, i)
}
