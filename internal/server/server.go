// Package server wires configuration, discovery, the registry and the MCP
// server into one runnable process.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/olgasafonova/tooldock-mcp-server/internal/config"
	"github.com/olgasafonova/tooldock-mcp-server/internal/discovery"
	"github.com/olgasafonova/tooldock-mcp-server/internal/infra"
	"github.com/olgasafonova/tooldock-mcp-server/internal/watch"
	"github.com/olgasafonova/tooldock-mcp-server/tools"
	"github.com/olgasafonova/tooldock-mcp-server/tracing"
)

// ServerVersion is reported to MCP clients.
const ServerVersion = "0.1.0"

const instructions = `Tooldock serves tools discovered from Go source files in its tools directory.

Built-in tools:
- list_loaded_tools: List the registered tools and the result of the last load, including per-unit errors
- reload_tools: Rescan the tools directory and replace the registered tools

Configure via environment variables:
- TOOLDOCK_TOOLS_DIR: directory scanned for tool units (default tools.d)
- TOOLDOCK_WATCH: reload automatically when unit files change`

// StrictError is returned by Init in strict mode when the initial pass
// reported errors.
type StrictError struct {
	Result discovery.Result
}

func (e *StrictError) Error() string {
	msgs := make([]string, 0, len(e.Result.Errors))
	for _, de := range e.Result.Errors {
		msgs = append(msgs, de.Error())
	}
	return fmt.Sprintf("strict mode: %d discovery error(s): %s", len(msgs), strings.Join(msgs, "; "))
}

// Server is a configured tool server.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	mcp      *mcp.Server
	registry *tools.Registry
	handlers *tools.HandlerRegistry
	orch     *discovery.Orchestrator
}

// New builds a server from cfg. Nothing is loaded until Init.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: tools.NewRegistry(),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    cfg.ServerName,
		Version: ServerVersion,
	}, &mcp.ServerOptions{
		Logger:       logger,
		Instructions: instructions,
	})

	s.handlers = tools.NewHandlerRegistry(s.mcp, s.registry, logger)
	s.orch = discovery.NewOrchestrator(s.registry, discovery.Options{
		Root:        cfg.ToolsDir,
		UnitTimeout: cfg.UnitTimeout,
		Parallelism: cfg.Parallelism,
		Logger:      logger,
		OnChange:    func(discovery.Result) { s.handlers.Sync() },
	})
	s.handlers.RegisterAdmin(s.orch.AdminReloader())
	return s
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Registry returns the live registry.
func (s *Server) Registry() *tools.Registry {
	return s.registry
}

// Orchestrator returns the discovery orchestrator.
func (s *Server) Orchestrator() *discovery.Orchestrator {
	return s.orch
}

// Init runs the initial discovery pass. In strict mode a pass with errors
// fails with a *StrictError.
func (s *Server) Init(ctx context.Context) (discovery.Result, error) {
	res, err := s.orch.Discover(ctx)
	if err != nil {
		return res, fmt.Errorf("initial discovery failed: %w", err)
	}
	if s.cfg.Strict && len(res.Errors) > 0 {
		return res, &StrictError{Result: res}
	}
	return res, nil
}

// Run serves MCP over t until ctx ends or the client disconnects. It starts
// the watcher and the metrics endpoint when they are configured.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.MetricsAddr != "" {
		stop := s.serveMetrics(s.cfg.MetricsAddr)
		defer stop()
	}

	if s.cfg.Watch {
		w, err := watch.New(s.cfg.ToolsDir, func(ctx context.Context) error {
			_, err := s.orch.Reload(ctx)
			return err
		}, watch.Options{
			Debounce: s.cfg.WatchDebounce,
			Filter:   discovery.IsUnit,
			Breaker:  infra.NewBreaker(3, 30*time.Second),
			Logger:   s.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			s.logger.Warn("File watching disabled", "dir", s.cfg.ToolsDir, "error", err)
		}
		defer w.Stop()
	}

	s.logger.Info("Starting tooldock MCP server",
		"name", s.cfg.ServerName,
		"version", ServerVersion,
		"tools_dir", s.cfg.ToolsDir,
		"tools", s.registry.Len(),
		"watch", s.cfg.Watch,
	)
	return s.mcp.Run(ctx, t)
}

// serveMetrics exposes Prometheus metrics on addr and returns a function
// that shuts the endpoint down.
func (s *Server) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// Serve sets up tracing, runs the initial discovery pass and serves MCP over
// t until ctx ends. It is the whole lifecycle of the server process.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, t mcp.Transport) error {
	shutdown := SetupTracing(ctx, cfg, logger)
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("Tracing shutdown failed", "error", err)
		}
	}()

	s := New(cfg, logger)
	res, err := s.Init(ctx)
	if err != nil {
		var strict *StrictError
		if errors.As(err, &strict) {
			for _, de := range strict.Result.Errors {
				logger.Error("Discovery error", "unit", de.Unit, "rule", de.Rule(), "error", de.Error())
			}
		}
		return err
	}
	logger.Info("Initial discovery finished",
		"status", res.Status,
		"tools", len(res.Registered),
		"errors", len(res.Errors),
		"duration", res.Duration,
	)

	if err := s.Run(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// SetupTracing configures OpenTelemetry from cfg and returns its shutdown
// function. Setup failures disable tracing instead of stopping the server.
func SetupTracing(ctx context.Context, cfg *config.Config, logger *slog.Logger) func(context.Context) error {
	tc := tracing.DefaultConfig()
	tc.ServiceName = cfg.ServerName
	tc.ServiceVersion = ServerVersion
	tc.Enabled = cfg.Tracing.Enabled
	tc.Endpoint = cfg.Tracing.Endpoint
	tc.SampleRate = cfg.Tracing.SampleRate
	tc.Environment = cfg.Tracing.Environment

	shutdown, err := tracing.Setup(ctx, tc)
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
		return func(context.Context) error { return nil }
	}
	if tc.Enabled {
		logger.Info("Tracing enabled", "endpoint", tc.Endpoint, "sample_rate", tc.SampleRate)
	}
	return shutdown
}
