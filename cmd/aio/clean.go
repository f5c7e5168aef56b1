package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aio-dev/aio/internal/panemgr"
)

var cleanForce bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove .aio/ (store, logs, generated tool configs) once no sessions are active",
	RunE:  runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanForce, "force", false, "remove .aio/ even if sessions look active")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return fmt.Errorf("aio: load config: %w", err)
	}
	logger := newLogger(cfg)

	if !cleanForce {
		panes := panemgr.NewManager(logger)
		if panes.Available() {
			sessions, err := panes.ListSessions()
			if err != nil {
				return fmt.Errorf("aio: list sessions: %w", err)
			}
			for _, s := range sessions {
				if strings.HasPrefix(s, sessionPrefix) {
					return fmt.Errorf("aio: session %q still active; run \"aio stop\" first, or pass --force", s)
				}
			}
		}
	}

	dir := filepath.Join(cfg.RepoRoot, ".aio")
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("aio: remove %s: %w", dir, err)
	}
	fmt.Printf("Removed %s.\n", dir)
	return nil
}
