package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aio-dev/aio/internal/domain"
	"github.com/aio-dev/aio/internal/panemgr"
	"github.com/aio-dev/aio/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the store location, active sessions, and task/worker counts",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return fmt.Errorf("aio: load config: %w", err)
	}
	logger := newLogger(cfg)

	fmt.Printf("Repo:  %s\n", cfg.RepoRoot)
	fmt.Printf("Store: %s\n", absStorePath(cfg))

	panes := panemgr.NewManager(logger)
	if panes.Available() {
		sessions, err := panes.ListSessions()
		if err != nil {
			fmt.Printf("Sessions: error listing tmux sessions: %v\n", err)
		} else {
			var live []string
			for _, s := range sessions {
				if strings.HasPrefix(s, sessionPrefix) {
					live = append(live, s)
				}
			}
			if len(live) == 0 {
				fmt.Println("Sessions: none active")
			} else {
				fmt.Printf("Sessions: %s\n", strings.Join(live, ", "))
			}
		}
	} else {
		fmt.Println("Sessions: tmux not available")
	}

	st, err := store.Open(absStorePath(cfg))
	if err != nil {
		return fmt.Errorf("aio: open store: %w", err)
	}
	defer st.Close()

	tasks, err := st.ListTasks()
	if err != nil {
		return fmt.Errorf("aio: list tasks: %w", err)
	}
	counts := map[domain.TaskStatus]int{}
	for _, t := range tasks {
		counts[t.Status]++
	}
	fmt.Printf("Tasks: %d total (pending=%d in_progress=%d review=%d completed=%d failed=%d)\n",
		len(tasks),
		counts[domain.TaskPending],
		counts[domain.TaskInProgress],
		counts[domain.TaskReview],
		counts[domain.TaskCompleted],
		counts[domain.TaskFailed],
	)

	workers, err := st.ListActiveWorkers()
	if err != nil {
		return fmt.Errorf("aio: list workers: %w", err)
	}
	fmt.Printf("Active workers: %d\n", len(workers))

	return nil
}
