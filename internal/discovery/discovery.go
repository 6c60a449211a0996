// Package discovery scans the tools directory, loads every unit, validates
// the tools each unit exports and installs the result into the registry in a
// single atomic step.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/olgasafonova/tooldock-mcp-server/internal/collect"
	toolerrors "github.com/olgasafonova/tooldock-mcp-server/internal/errors"
	"github.com/olgasafonova/tooldock-mcp-server/internal/infra"
	"github.com/olgasafonova/tooldock-mcp-server/internal/loader"
	"github.com/olgasafonova/tooldock-mcp-server/internal/signature"
	"github.com/olgasafonova/tooldock-mcp-server/metrics"
	"github.com/olgasafonova/tooldock-mcp-server/tools"
	"github.com/olgasafonova/tooldock-mcp-server/tracing"
)

// Pass outcomes.
const (
	StatusOK      = "ok"      // tools registered, no errors
	StatusPartial = "partial" // tools registered, some units or candidates failed
	StatusEmpty   = "empty"   // nothing registered
	StatusFailed  = "failed"  // the pass itself failed; registry untouched
)

// Defaults applied by NewOrchestrator.
const (
	DefaultUnitTimeout = 5 * time.Second
	DefaultParallelism = 4
)

const reloadKey = "reload"

// Options configures an Orchestrator.
type Options struct {
	// Root is the tools directory.
	Root string

	// UnitTimeout bounds loading one unit, including its Register callback.
	UnitTimeout time.Duration

	// Parallelism is the number of units loaded at once.
	Parallelism int

	Logger *slog.Logger

	// OnChange is called after every installed pass, in generation order.
	OnChange func(Result)
}

// Result is the outcome of one discovery pass.
type Result struct {
	Generation uint64
	Registered []string // tool names, sorted
	Errors     []*toolerrors.DiscoveryError
	Status     string
	Units      int
	Duration   time.Duration
}

// OK reports whether the pass registered tools without errors.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Summary renders the result for the admin tools.
func (r Result) Summary() tools.LoadSummary {
	s := tools.LoadSummary{
		Registered: append([]string{}, r.Registered...),
		Count:      len(r.Registered),
		Errors:     make([]string, 0, len(r.Errors)),
		Generation: r.Generation,
		Status:     r.Status,
	}
	for _, e := range r.Errors {
		s.Errors = append(s.Errors, e.Error())
	}
	return s
}

// Orchestrator runs discovery passes against one registry. It is the only
// writer of that registry.
type Orchestrator struct {
	opts      Options
	registry  *tools.Registry
	collector *collect.Collector
	logger    *slog.Logger

	mu      sync.Mutex // one pass at a time
	reloads *infra.Coalescer[Result]
	last    atomic.Pointer[Result]
}

// NewOrchestrator creates an orchestrator that installs into registry.
func NewOrchestrator(registry *tools.Registry, opts Options) *Orchestrator {
	if opts.UnitTimeout <= 0 {
		opts.UnitTimeout = DefaultUnitTimeout
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		opts:      opts,
		registry:  registry,
		collector: collect.New(opts.Logger),
		logger:    opts.Logger,
		reloads:   infra.NewCoalescer[Result](),
	}
}

// Registry returns the registry the orchestrator installs into.
func (o *Orchestrator) Registry() *tools.Registry {
	return o.registry
}

// Last returns the result of the latest installed pass.
func (o *Orchestrator) Last() (Result, bool) {
	r := o.last.Load()
	if r == nil {
		return Result{}, false
	}
	return *r, true
}

// Discover runs a full pass and installs its catalog. Unit failures are
// reported in Result.Errors. An error is returned only when the tools
// directory cannot be listed, ctx ends, or the built catalog is
// inconsistent; the live registry is then left as it was.
func (o *Orchestrator) Discover(ctx context.Context) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, tracing.SpanDiscoveryPass,
		trace.WithAttributes(attribute.String("tooldock.root", o.opts.Root)))
	defer span.End()

	start := time.Now()
	res, err := o.pass(ctx)
	res.Duration = time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.DiscoveryPasses.WithLabelValues(StatusFailed).Inc()
		o.logger.Error("Discovery pass failed", "root", o.opts.Root, "error", err)
		return Result{Status: StatusFailed, Duration: res.Duration}, err
	}

	tracing.AddDiscoveryAttributes(span, res.Generation, len(res.Registered), len(res.Errors), res.Status)
	span.SetStatus(codes.Ok, "")
	metrics.RecordDiscovery(res.Status, res.Duration.Seconds(), len(res.Registered), res.Generation)
	for _, e := range res.Errors {
		metrics.RecordDiscoveryError(string(e.Kind))
		o.logger.Warn("Discovery error",
			"unit", e.Unit,
			"kind", e.Kind,
			"rule", e.Rule(),
			"candidate", e.Candidate,
			"error", e.Err,
		)
	}
	o.logger.Info("Discovery pass complete",
		"generation", res.Generation,
		"units", res.Units,
		"count", len(res.Registered),
		"errors", len(res.Errors),
		"status", res.Status,
		"duration", res.Duration,
	)

	o.last.Store(&res)
	if o.opts.OnChange != nil {
		o.opts.OnChange(res)
	}
	return res, nil
}

// Reload runs a pass on behalf of a reload request. Requests that arrive
// while a reload is running share its result. The shared pass is detached
// from the cancellation of the caller that started it; per-unit timeouts
// still bound it.
func (o *Orchestrator) Reload(ctx context.Context) (Result, error) {
	passCtx := context.WithoutCancel(ctx)
	res, shared, err := o.reloads.Do(ctx, reloadKey, func() (Result, error) {
		return o.Discover(passCtx)
	})
	if shared {
		metrics.ReloadsCoalesced.Inc()
		o.logger.Debug("Reload request joined a running pass", "generation", res.Generation)
	}
	return res, err
}

// unitResult is what one unit contributes to a pass.
type unitResult struct {
	id    string
	descs []*tools.Descriptor
	errs  []*toolerrors.DiscoveryError
}

func (o *Orchestrator) pass(ctx context.Context) (Result, error) {
	units, err := ListUnits(o.opts.Root)
	if err != nil {
		return Result{}, err
	}

	results := make([]unitResult, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Parallelism)
	for i, id := range units {
		g.Go(func() error {
			results[i] = o.processUnit(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("discovery interrupted: %w", err)
	}

	catalog := tools.NewCatalog()
	for _, name := range tools.ReservedNames() {
		catalog.Reserve(name, tools.BuiltinUnit)
	}

	res := Result{
		Registered: []string{},
		Errors:     []*toolerrors.DiscoveryError{},
		Units:      len(units),
	}
	for _, ur := range results {
		res.Errors = append(res.Errors, ur.errs...)
		for _, d := range ur.descs {
			if err := catalog.Register(d); err != nil {
				res.Errors = append(res.Errors, toolerrors.New(ur.id, toolerrors.DuplicateToolName, d.Name, err))
			}
		}
	}

	installed, err := o.registry.ReplaceAll(catalog.Descriptors())
	if err != nil {
		return Result{}, err
	}

	res.Generation = installed.Generation()
	res.Registered = installed.Names()
	res.Status = status(len(res.Registered), len(res.Errors))
	return res, nil
}

func status(registered, errs int) string {
	switch {
	case registered == 0:
		return StatusEmpty
	case errs > 0:
		return StatusPartial
	default:
		return StatusOK
	}
}

// processUnit loads, collects and validates one unit under the unit timeout.
func (o *Orchestrator) processUnit(ctx context.Context, id string) unitResult {
	ctx, span := tracing.StartUnitSpan(ctx, id)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.opts.UnitTimeout)
	defer cancel()

	res := unitResult{id: id}

	start := time.Now()
	u, err := loader.Load(ctx, id, filepath.Join(o.opts.Root, id))
	metrics.RecordUnitLoad(time.Since(start).Seconds(), err == nil)
	if err != nil {
		kind := toolerrors.ModuleLoadFailure
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = toolerrors.UnitTimeout
			err = fmt.Errorf("not loaded within %s: %w", o.opts.UnitTimeout, err)
		}
		if loader.IsPanic(err) {
			metrics.PanicsRecovered.WithLabelValues(id).Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		res.errs = append(res.errs, toolerrors.New(id, kind, "", err))
		return res
	}

	cands, errs := o.collector.Collect(ctx, u)
	res.errs = append(res.errs, errs...)

	for _, c := range cands {
		sig, err := signature.Check(c.Func.Type(), c.Spec.ParamNames, c.Spec.Exclude)
		if err != nil {
			res.errs = append(res.errs, toolerrors.New(id, toolerrors.ValidationFailure, c.Spec.Name, err))
			continue
		}
		res.descs = append(res.descs, tools.NewDescriptor(id, c.Source.String(), c.Spec, c.Func, sig))
	}

	span.SetAttributes(
		attribute.Int("tooldock.unit.tools", len(res.descs)),
		attribute.Int("tooldock.unit.errors", len(res.errs)),
	)
	return res
}

// ListUnits returns the unit files in root, sorted by name. Files starting
// with "_" or "." and test files are skipped.
func ListUnits(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("tools directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tools directory: %s is not a directory", root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("tools directory: %w", err)
	}

	// ReadDir sorts by file name.
	var units []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !IsUnit(name) {
			continue
		}
		units = append(units, name)
	}
	return units, nil
}

// IsUnit reports whether a file name in the tools directory is a unit.
func IsUnit(name string) bool {
	return strings.HasSuffix(name, ".go") &&
		!strings.HasSuffix(name, "_test.go") &&
		!strings.HasPrefix(name, "_") &&
		!strings.HasPrefix(name, ".")
}

// AdminReloader adapts the orchestrator to the reload_tools and
// list_loaded_tools admin tools.
func (o *Orchestrator) AdminReloader() tools.Reloader {
	return adminReloader{o: o}
}

type adminReloader struct {
	o *Orchestrator
}

func (a adminReloader) Reload(ctx context.Context) (tools.LoadSummary, error) {
	res, err := a.o.Reload(ctx)
	if err != nil {
		return tools.LoadSummary{}, err
	}
	return res.Summary(), nil
}

func (a adminReloader) Summary() tools.LoadSummary {
	if res, ok := a.o.Last(); ok {
		return res.Summary()
	}
	return Result{Status: StatusEmpty}.Summary()
}
