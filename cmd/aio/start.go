package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aio-dev/aio/internal/orchestrator"
	"github.com/aio-dev/aio/internal/panemgr"
	"github.com/aio-dev/aio/internal/store"
)

var plannerCmdFlag string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Allocate a session: launch the Orchestrator in an adjacent pane and the Planner agent here",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().StringVar(&plannerCmdFlag, "planner-cmd", "", `command to run as the Planner agent in this terminal (default: $AIO_PLANNER_CMD or "claude")`)
	rootCmd.AddCommand(startCmd)
}

// runStart allocates a session: it
// launches the Orchestrator process (event loop, Notifier, Reaper) in a new
// tmux pane, and then becomes the Planner agent in the current terminal.
func runStart(cmd *cobra.Command, args []string) error {
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

	binPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("aio: locate own binary: %w", err)
	}
	if err := orchestrator.GenerateToolConfigs(generatedDir(cfg), binPath); err != nil {
		return fmt.Errorf("aio: generate tool configs: %w", err)
	}

	sessionID := uuid.NewString()[:8]

	panes := panemgr.NewManager(logger)
	if panes.Available() {
		orchCmdLine := shellJoin([]string{
			binPath, "orchestrate",
			"--store", absStorePath(cfg),
			"--repo", cfg.RepoRoot,
			"--session", sessionID,
		})
		handle := sessionPaneHandle(sessionID)
		if _, err := panes.OpenPane(handle, cfg.RepoRoot, orchCmdLine); err != nil {
			return fmt.Errorf("aio: launch orchestrator pane: %w", err)
		}
		logger.Printf("start: session %s orchestrator running in pane %s", sessionID, handle)
	} else {
		logger.Printf("start: tmux unavailable; orchestrator, notifier, and reaper will not run")
		fmt.Println("Warning: tmux not found. The Orchestrator, Notifier, and Reaper are not running.")
		fmt.Println(`Run "aio orchestrate" yourself in another terminal, or install tmux.`)
	}

	fmt.Printf("Session %s started.\n", sessionID)
	fmt.Printf("Planner tool config: %s\n", filepath.Join(generatedDir(cfg), "planner.json"))

	return execPlanner(resolvePlannerCmd())
}

func resolvePlannerCmd() string {
	if plannerCmdFlag != "" {
		return plannerCmdFlag
	}
	if v := os.Getenv("AIO_PLANNER_CMD"); v != "" {
		return v
	}
	return "claude"
}

// execPlanner replaces the current process image with the Planner agent
// command, so the invoking terminal becomes the Planner's terminal
// directly rather than a wrapper process babysitting a child.
func execPlanner(cmdline string) error {
	parts := strings.Fields(cmdline)
	if len(parts) == 0 {
		return fmt.Errorf("aio: empty planner command")
	}
	path, err := exec.LookPath(parts[0])
	if err != nil {
		return fmt.Errorf("aio: planner command %q not found: %w", parts[0], err)
	}
	return syscall.Exec(path, parts, os.Environ())
}

// shellJoin renders parts as a single-quoted shell command line for tmux's
// new-session command argument.
func shellJoin(parts []string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = shellQuoteArg(p)
	}
	return strings.Join(quoted, " ")
}

func shellQuoteArg(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
