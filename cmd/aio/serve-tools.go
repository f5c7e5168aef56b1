package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/aio-dev/aio/internal/store"
	"github.com/aio-dev/aio/internal/toolsurface"
	"github.com/aio-dev/aio/internal/workspace"
)

var serveToolsRole string

// serveToolsCmd is what the generated per-role tool configuration files
// (.aio/.generated/{planner,worker,reviewer}.json) point an agent's MCP
// client at: it exposes only the tools that role is granted, over stdio.
var serveToolsCmd = &cobra.Command{
	Use:    "serve-tools",
	Short:  "Serve the MCP tool surface for one role over stdio (internal; invoked via the generated tool configs)",
	Hidden: true,
	RunE:   runServeTools,
}

func init() {
	serveToolsCmd.Flags().StringVar(&serveToolsRole, "role", "", `agent role: "planner", "worker", or "reviewer"`)
	rootCmd.AddCommand(serveToolsCmd)
}

func runServeTools(cmd *cobra.Command, args []string) error {
	if serveToolsRole != "planner" && serveToolsRole != "worker" && serveToolsRole != "reviewer" {
		return fmt.Errorf("aio: --role must be one of planner, worker, reviewer")
	}

	cfg, err := resolveConfig()
	if err != nil {
		return fmt.Errorf("aio: load config: %w", err)
	}
	logger := newLogger(cfg)

	st, err := store.Open(absStorePath(cfg))
	if err != nil {
		return fmt.Errorf("aio: open store: %w", err)
	}
	defer st.Close()

	ws := workspace.NewManager(cfg.RepoRoot, logger)
	guard := buildGuard(cfg)

	srv := toolsurface.NewServer(st, ws, guard, logger)
	mcpServer := server.NewMCPServer("aio", "1.0.0")
	srv.RegisterForRole(mcpServer, serveToolsRole)

	logger.Printf("serve-tools: role %s starting over stdio", serveToolsRole)
	stdioSrv := server.NewStdioServer(mcpServer)
	if err := stdioSrv.Listen(cmd.Context(), os.Stdin, os.Stdout); err != nil {
		logger.Printf("serve-tools: stdio server error: %v", err)
		return err
	}
	return nil
}
