package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/olgasafonova/tooldock-mcp-server/internal/config"
	"github.com/olgasafonova/tooldock-mcp-server/internal/discovery"
	"github.com/olgasafonova/tooldock-mcp-server/internal/server"
	"github.com/olgasafonova/tooldock-mcp-server/tools"
)

// App is the tooldock command-line interface.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	configPath string
	toolsDir   string
}

// NewApp creates the CLI.
func NewApp() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "tooldock",
		Short: "Serve Go source files as MCP tools",
		Long: `tooldock discovers tools in a directory of Go source files, validates their
signatures and serves them to MCP clients over stdio.

Settings come from TOOLDOCK_* environment variables, an optional YAML file
(--config or TOOLDOCK_CONFIG) and .env files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	app.root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Path to a YAML configuration file")
	app.root.PersistentFlags().StringVarP(&app.toolsDir, "tools-dir", "d", "", "Tools directory (overrides configuration)")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newServeCmd(),
		app.newCheckCmd(),
		app.newListCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI until it finishes or the process is interrupted.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments.
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "tooldock version %s\n", server.ServerVersion)
		},
	}
}

// loadConfig resolves the configuration, applying command-line overrides.
func (a *App) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.toolsDir != "" {
		cfg.ToolsDir = a.toolsDir
	}
	return cfg, nil
}

// discover runs one discovery pass against cfg.ToolsDir without serving.
func (a *App) discover(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tools.Registry, discovery.Result, error) {
	registry := tools.NewRegistry()
	orch := discovery.NewOrchestrator(registry, discovery.Options{
		Root:        cfg.ToolsDir,
		UnitTimeout: cfg.UnitTimeout,
		Parallelism: cfg.Parallelism,
		Logger:      logger,
	})
	res, err := orch.Discover(ctx)
	if err != nil {
		return nil, res, fmt.Errorf("discovery failed: %w", err)
	}
	return registry, res, nil
}
