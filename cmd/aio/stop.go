package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aio-dev/aio/internal/panemgr"
)

var stopCmd = &cobra.Command{
	Use:   "stop [session-id]",
	Short: "Terminate a session's orchestrator pane (or every session's, with no argument)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return fmt.Errorf("aio: load config: %w", err)
	}
	logger := newLogger(cfg)
	panes := panemgr.NewManager(logger)

	if !panes.Available() {
		return fmt.Errorf("aio: tmux not available")
	}

	if len(args) == 1 {
		handle := sessionPaneHandle(args[0])
		if err := panes.ClosePane(handle); err != nil {
			return fmt.Errorf("aio: stop session %s: %w", args[0], err)
		}
		fmt.Printf("Stopped session %s.\n", args[0])
		return nil
	}

	sessions, err := panes.ListSessions()
	if err != nil {
		return fmt.Errorf("aio: list sessions: %w", err)
	}

	var stopped int
	for _, s := range sessions {
		if !strings.HasPrefix(s, sessionPrefix) {
			continue
		}
		if err := panes.ClosePane(s); err != nil {
			logger.Printf("stop: close %s: %v", s, err)
			continue
		}
		stopped++
	}
	fmt.Printf("Stopped %d session(s).\n", stopped)
	return nil
}
