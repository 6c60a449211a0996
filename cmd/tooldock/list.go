package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/olgasafonova/tooldock-mcp-server/tools"
)

// listOptions holds options for the list command.
type listOptions struct {
	format string
}

func (a *App) newListCmd() *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tools the tools directory would register",
		Long: `Load the tools directory and list every tool that passed validation, with
the unit it came from and how it was exported.

Examples:
  tooldock list -d ./tools.d
  tooldock list --format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runList(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, yaml or json")

	return cmd
}

func (a *App) runList(cmd *cobra.Command, opts *listOptions) error {
	if err := validFormat(opts.format); err != nil {
		return err
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	registry, _, err := a.discover(cmd.Context(), cfg, cfg.NewLogger(a.stderr))
	if err != nil {
		return err
	}

	inventory := tools.Inventory(registry)
	return writeFormatted(a.stdout, opts.format, inventory, func(w io.Writer) {
		writeListText(w, inventory)
	})
}

func writeListText(w io.Writer, inventory []tools.ToolInfo) {
	if len(inventory) == 0 {
		fmt.Fprintln(w, "No tools registered.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tUNIT\tSOURCE\tPARAMETERS\tDESCRIPTION")
	for _, info := range inventory {
		params := make([]string, 0, len(info.Parameters))
		for _, p := range info.Parameters {
			if p.Excluded {
				continue
			}
			name := p.Name
			if !p.Required {
				name += "?"
			}
			params = append(params, name)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			info.Name, info.Unit, info.Source, strings.Join(params, ","), firstLine(info.Description))
	}
	_ = tw.Flush()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
