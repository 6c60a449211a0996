package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/olgasafonova/tooldock-mcp-server/internal/server"
)

// serveOptions holds options for the serve command.
type serveOptions struct {
	watch       bool
	strict      bool
	metricsAddr string
}

func (a *App) newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the discovered tools over stdio",
		Long: `Discover the tools directory and serve the registered tools to an MCP
client over stdin/stdout. Logs go to stderr.

Examples:
  # Serve and reload whenever a unit file changes
  tooldock serve -d ./tools.d --watch

  # Refuse to start if any unit or candidate is rejected
  tooldock serve --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("watch") {
				cfg.Watch = opts.watch
			}
			if cmd.Flags().Changed("strict") {
				cfg.Strict = opts.strict
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = opts.metricsAddr
			}
			return server.Serve(cmd.Context(), cfg, cfg.NewLogger(a.stderr), &mcp.StdioTransport{})
		},
	}

	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Reload when unit files change")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Refuse to start when the initial pass reports errors")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}
