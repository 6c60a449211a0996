package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/olgasafonova/tooldock-mcp-server/internal/discovery"
	"github.com/olgasafonova/tooldock-mcp-server/tools"
)

// checkOptions holds options for the check command.
type checkOptions struct {
	strict bool
	format string
}

// checkReport is the machine-readable output of check.
type checkReport struct {
	ToolsDir string            `json:"tools_dir" yaml:"tools_dir"`
	Units    int               `json:"units" yaml:"units"`
	Summary  tools.LoadSummary `json:"summary" yaml:"summary"`
}

func (a *App) newCheckCmd() *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load the tools directory and report problems",
		Long: `Run one discovery pass over the tools directory and report which tools
would be registered and which units or candidates were rejected.

Examples:
  # Report problems without failing
  tooldock check -d ./tools.d

  # Fail when any unit or candidate is rejected (for CI)
  tooldock check -d ./tools.d --strict

  # Machine-readable summary
  tooldock check --format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCheck(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail when the pass reports any error")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, yaml or json")

	return cmd
}

func (a *App) runCheck(cmd *cobra.Command, opts *checkOptions) error {
	if err := validFormat(opts.format); err != nil {
		return err
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	_, res, err := a.discover(cmd.Context(), cfg, cfg.NewLogger(a.stderr))
	if err != nil {
		return err
	}

	report := checkReport{ToolsDir: cfg.ToolsDir, Units: res.Units, Summary: res.Summary()}
	if err := writeFormatted(a.stdout, opts.format, report, func(w io.Writer) {
		writeCheckText(w, report, res)
	}); err != nil {
		return err
	}

	if opts.strict && len(res.Errors) > 0 {
		return fmt.Errorf("strict mode: %d discovery error(s)", len(res.Errors))
	}
	return nil
}

func writeCheckText(w io.Writer, report checkReport, res discovery.Result) {
	fmt.Fprintf(w, "Tools directory: %s\n", report.ToolsDir)
	fmt.Fprintf(w, "Status: %s (generation %d, %d units, %s)\n",
		res.Status, res.Generation, res.Units, res.Duration.Round(time.Millisecond))

	fmt.Fprintf(w, "\nRegistered (%d):\n", len(res.Registered))
	for _, name := range res.Registered {
		fmt.Fprintf(w, "  - %s\n", name)
	}

	if len(res.Errors) == 0 {
		fmt.Fprintf(w, "\n✓ No errors\n")
		return
	}
	fmt.Fprintf(w, "\nErrors (%d):\n", len(res.Errors))
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  - %s\n", e.Error())
	}
}

func validFormat(format string) error {
	switch format {
	case "text", "yaml", "json":
		return nil
	}
	return fmt.Errorf("unknown format %q (want text, yaml or json)", format)
}

// writeFormatted writes v as YAML or JSON, or calls text for the text format.
func writeFormatted(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch strings.ToLower(format) {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	default:
		text(w)
		return nil
	}
}
