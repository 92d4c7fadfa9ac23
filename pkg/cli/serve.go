package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-workspace/pkg/handlers"
	"github.com/ekaya-inc/ekaya-workspace/pkg/mcp"
	"github.com/ekaya-inc/ekaya-workspace/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-workspace/pkg/middleware"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(version string, configPath *string) *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workspace tools over MCP",
		Long: `Serve the workspace and table analysis tools over MCP.

With --transport stdio (the default) the process speaks MCP on stdin/stdout
and logs to stderr. With --transport http it listens on mcp.bind_addr:mcp.port
and serves /mcp, /health, /ping and /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(version, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if cmd.Flags().Changed("transport") {
				cfg.MCP.Transport = transport
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := a.Close(closeCtx); err != nil {
					logger.Error("Shutdown incomplete", zap.Error(err))
				}
			}()

			mcpServer := mcp.NewServer("ekaya-workspace", version, logger)
			if err := mcpServer.Calls().Register(a.registry); err != nil {
				return fmt.Errorf("failed to register MCP metrics: %w", err)
			}
			tools.RegisterAll(mcpServer.MCP(), &tools.ToolDeps{
				Workspaces: a.workspaces,
				Sessions:   a.sessions,
				Analyzer:   a.analyzer,
				Manager:    a.manager,
				Version:    version,
				Logger:     logger.Named("tools"),
			})

			switch cfg.MCP.Transport {
			case "stdio":
				return serveStdio(ctx, mcpServer, cmd)
			case "http":
				return serveHTTP(ctx, a, mcpServer)
			default:
				return fmt.Errorf("unknown transport %q (want stdio or http)", cfg.MCP.Transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "stdio or http (overrides mcp.transport)")

	return cmd
}

func serveStdio(ctx context.Context, s *mcp.Server, cmd *cobra.Command) error {
	err := s.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveHTTP(ctx context.Context, a *app, s *mcp.Server) error {
	mux := http.NewServeMux()
	handlers.NewHealthHandler(a.cfg, a.manager, a.logger).RegisterRoutes(mux)
	handlers.NewMetricsHandler(a.registry).RegisterRoutes(mux)
	handlers.NewMCPHandler(s, a.logger.Named("mcp-http")).RegisterRoutes(mux)

	addr := net.JoinHostPort(a.cfg.MCP.BindAddr, a.cfg.MCP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           middleware.RequestLogger(a.logger.Named("http"))(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Serving MCP over HTTP", zap.String("addr", addr), zap.String("version", a.cfg.Version))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	return nil
}
