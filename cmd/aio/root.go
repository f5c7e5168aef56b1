package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	storePath string
	repoRoot  string
	verbose   bool
)

// rootCmd is the base command; running aio with no subcommand is equivalent
// to "aio start".
var rootCmd = &cobra.Command{
	Use:   "aio",
	Short: "Multi-agent orchestration kernel: Planner/Worker/Reviewer over a durable event log",
	Long: `aio routes work between a Planner, Worker, and Reviewer agent through
an append-only event log, a git-worktree-isolated workspace per worker, and
tmux panes for each agent's terminal.

  start   allocate a session (default)
  stop    terminate a session
  status  show active sessions and store location
  clean   remove .aio/ when no sessions are active`,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd, args)
	},
}

// Execute runs the root command, exiting non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "path to the event store (overrides config/env)")
	rootCmd.PersistentFlags().StringVar(&repoRoot, "repo", "", "target repository root (overrides config/env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr in addition to the log file")
}
