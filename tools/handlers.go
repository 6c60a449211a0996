package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/olgasafonova/tooldock-mcp-server/metrics"
	"github.com/olgasafonova/tooldock-mcp-server/tracing"
)

// HandlerRegistry mirrors a registry view into an MCP server. Handlers look
// the descriptor up at call time, so a call always runs against the catalog
// that is live when it arrives.
type HandlerRegistry struct {
	server *mcp.Server
	view   View
	logger *slog.Logger

	mu        sync.Mutex
	installed map[string]string // name -> fingerprint of the advertised tool
}

// NewHandlerRegistry creates a new handler registry.
func NewHandlerRegistry(server *mcp.Server, view View, logger *slog.Logger) *HandlerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &HandlerRegistry{
		server:    server,
		view:      view,
		logger:    logger,
		installed: make(map[string]string),
	}
}

// SyncStats counts the changes applied by Sync.
type SyncStats struct {
	Added   int
	Updated int
	Removed int
}

// Sync adds new tools, replaces changed ones and removes tools that are no
// longer in the view.
func (h *HandlerRegistry) Sync() SyncStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	var stats SyncStats
	seen := make(map[string]bool)
	for d := range h.view.All() {
		seen[d.Name] = true
		tool := h.buildTool(d)
		fp := fingerprint(tool)
		prev, ok := h.installed[d.Name]
		if ok && prev == fp {
			continue
		}
		h.server.AddTool(tool, h.handler(d.Name))
		h.installed[d.Name] = fp
		if ok {
			stats.Updated++
		} else {
			stats.Added++
		}
	}

	var stale []string
	for name := range h.installed {
		if !seen[name] {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		h.server.RemoveTools(stale...)
		for _, name := range stale {
			delete(h.installed, name)
		}
		stats.Removed = len(stale)
	}

	h.logger.Info("Synchronized tools",
		"count", len(seen),
		"added", stats.Added,
		"updated", stats.Updated,
		"removed", stats.Removed,
	)
	return stats
}

// buildTool creates an mcp.Tool from a Descriptor.
func (h *HandlerRegistry) buildTool(d *Descriptor) *mcp.Tool {
	annotations := &mcp.ToolAnnotations{
		Title:          d.Title,
		ReadOnlyHint:   d.Hints.ReadOnly,
		IdempotentHint: d.Hints.Idempotent,
	}
	if d.Hints.Destructive {
		annotations.DestructiveHint = ptr(true)
	}
	if d.Hints.OpenWorld {
		annotations.OpenWorldHint = ptr(true)
	}

	return &mcp.Tool{
		Name:        d.Name,
		Title:       d.Title,
		Description: d.Description,
		InputSchema: d.InputSchema(),
		Annotations: annotations,
	}
}

func fingerprint(tool *mcp.Tool) string {
	b, err := json.Marshal(tool)
	if err != nil {
		return ""
	}
	return string(b)
}

// handler wraps a tool call with panic recovery, metrics, tracing, and logging.
func (h *HandlerRegistry) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		defer h.recoverPanic(name, &result)

		d, ok := h.view.Lookup(name)
		if !ok {
			return errorResult(fmt.Errorf("tool %q is no longer registered", name)), nil
		}

		// Start trace span
		ctx, span := tracing.StartSpan(ctx, tracing.SpanToolPrefix+name)
		defer span.End()

		tracing.AddToolAttributes(span, d.Name, d.Unit, d.Source)
		span.SetAttributes(
			attribute.Bool("mcp.tool.readonly", d.Hints.ReadOnly),
			attribute.Int64("tooldock.registry.generation", int64(d.Generation)),
		)

		// Track in-flight requests
		metrics.RequestInFlight.WithLabelValues(name).Inc()
		defer metrics.RequestInFlight.WithLabelValues(name).Dec()

		var args json.RawMessage
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}

		start := time.Now()
		value, err := d.Call(ctx, args)
		duration := time.Since(start).Seconds()

		span.SetAttributes(attribute.Float64("mcp.tool.duration_seconds", duration))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.RecordRequest(name, duration, false)
			h.logger.Warn("Tool failed", "tool", name, "unit", d.Unit, "error", err)
			return errorResult(fmt.Errorf("%s failed: %w", name, err)), nil
		}

		res, err := valueResult(d, value)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.RecordRequest(name, duration, false)
			return errorResult(err), nil
		}

		span.SetStatus(codes.Ok, "")
		metrics.RecordRequest(name, duration, true)
		h.logExecution(d, args, duration)
		return res, nil
	}
}

// valueResult renders a tool value as text content. Object values are also
// returned as structured content.
func valueResult(d *Descriptor, value any) (*mcp.CallToolResult, error) {
	if s, ok := value.(string); ok {
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s}}}, nil
	}

	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%s: encode result: %w", d.Name, err)
	}
	res := &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(b)}}}
	if d.ReturnType == "object" && string(b) != "null" {
		res.StructuredContent = json.RawMessage(b)
	}
	return res, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		IsError: true,
	}
}

// recoverPanic recovers from panics in tool handlers and turns them into an
// error result.
func (h *HandlerRegistry) recoverPanic(toolName string, result **mcp.CallToolResult) {
	if rec := recover(); rec != nil {
		metrics.PanicsRecovered.WithLabelValues(toolName).Inc()
		h.logger.Error("Panic recovered",
			"tool", toolName,
			"panic", rec,
			"stack", string(debug.Stack()))
		*result = errorResult(fmt.Errorf("%s panicked: %v", toolName, rec))
	}
}

// logExecution logs tool execution details.
func (h *HandlerRegistry) logExecution(d *Descriptor, args json.RawMessage, duration float64) {
	h.logger.Info("Tool executed",
		"tool", d.Name,
		"unit", d.Unit,
		"source", d.Source,
		"args_bytes", len(args),
		"duration_seconds", duration,
	)
}

// ptr is a helper to create a pointer to a value.
func ptr[T any](v T) *T {
	return &v
}
