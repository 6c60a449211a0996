package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Names of the built-in admin tools. Units cannot register them.
const (
	ListLoadedToolsName = "list_loaded_tools"
	ReloadToolsName     = "reload_tools"
)

// ReservedNames returns the names owned by the server itself.
func ReservedNames() []string {
	return []string{ListLoadedToolsName, ReloadToolsName}
}

// LoadSummary describes the outcome of the latest discovery pass.
type LoadSummary struct {
	Registered []string `json:"registered" yaml:"registered"`
	Count      int      `json:"count" yaml:"count"`
	Errors     []string `json:"errors" yaml:"errors"`
	Generation uint64   `json:"generation" yaml:"generation"`
	Status     string   `json:"status" yaml:"status"`
}

// Reloader runs discovery passes on behalf of the admin tools.
type Reloader interface {
	Reload(ctx context.Context) (LoadSummary, error)
	Summary() LoadSummary
}

// ToolInfo is the reported surface of one registered tool.
type ToolInfo struct {
	Name        string         `json:"name" yaml:"name"`
	Title       string         `json:"title,omitempty" yaml:"title,omitempty"`
	Description string         `json:"description" yaml:"description"`
	Tags        []string       `json:"tags" yaml:"tags"`
	Parameters  []Parameter    `json:"parameters" yaml:"parameters"`
	ReturnType  string         `json:"return_type" yaml:"return_type"`
	Hints       Hints          `json:"hints" yaml:"hints"`
	Unit        string         `json:"unit" yaml:"unit"`
	Source      string         `json:"source" yaml:"source"`
	Generation  uint64         `json:"generation" yaml:"generation"`
	InputSchema map[string]any `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
}

// Info returns the reported surface of d.
func Info(d *Descriptor) ToolInfo {
	info := ToolInfo{
		Name:        d.Name,
		Title:       d.Title,
		Description: d.Description,
		Tags:        append([]string{}, d.Tags...),
		Parameters:  append([]Parameter{}, d.Params...),
		ReturnType:  d.ReturnType,
		Hints:       d.Hints,
		Unit:        d.Unit,
		Source:      d.Source,
		Generation:  d.Generation,
	}
	if s := d.InputSchema(); s != nil {
		if b, err := json.Marshal(s); err == nil {
			_ = json.Unmarshal(b, &info.InputSchema)
		}
	}
	return info
}

// Inventory returns the reported surface of every tool in view, by name.
func Inventory(view View) []ToolInfo {
	out := make([]ToolInfo, 0, view.Len())
	for d := range view.All() {
		out = append(out, Info(d))
	}
	return out
}

// ListLoadedToolsArgs takes no arguments.
type ListLoadedToolsArgs struct{}

// ListLoadedToolsResult is the inventory plus the latest load summary.
type ListLoadedToolsResult struct {
	Tools   []ToolInfo  `json:"tools"`
	Summary LoadSummary `json:"summary"`
}

// ReloadToolsArgs takes no arguments.
type ReloadToolsArgs struct{}

// ReloadToolsResult reports a finished reload.
type ReloadToolsResult struct {
	Reloaded bool        `json:"reloaded"`
	Summary  LoadSummary `json:"summary"`
}

// RegisterAdmin adds the admin tools to server.
func (h *HandlerRegistry) RegisterAdmin(reloader Reloader) {
	mcp.AddTool(h.server, &mcp.Tool{
		Name:        ListLoadedToolsName,
		Title:       "List loaded tools",
		Description: "List the tools discovered in the tools directory together with the summary of the last load, including per-unit errors.",
		Annotations: &mcp.ToolAnnotations{
			Title:          "List loaded tools",
			ReadOnlyHint:   true,
			IdempotentHint: true,
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ListLoadedToolsArgs) (*mcp.CallToolResult, ListLoadedToolsResult, error) {
		return nil, ListLoadedToolsResult{
			Tools:   Inventory(h.view),
			Summary: reloader.Summary(),
		}, nil
	})

	mcp.AddTool(h.server, &mcp.Tool{
		Name:        ReloadToolsName,
		Title:       "Reload tools",
		Description: "Rescan the tools directory and replace the registered tools. Returns the new load summary.",
		Annotations: &mcp.ToolAnnotations{
			Title:          "Reload tools",
			IdempotentHint: true,
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ReloadToolsArgs) (*mcp.CallToolResult, ReloadToolsResult, error) {
		summary, err := reloader.Reload(ctx)
		if err != nil {
			return nil, ReloadToolsResult{}, fmt.Errorf("%s failed: %w", ReloadToolsName, err)
		}
		return nil, ReloadToolsResult{Reloaded: true, Summary: summary}, nil
	})

	h.logger.Info("Registered admin tools", "tools", ReservedNames())
}
