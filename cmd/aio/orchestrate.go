package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aio-dev/aio/internal/notifier"
	"github.com/aio-dev/aio/internal/orchestrator"
	"github.com/aio-dev/aio/internal/panemgr"
	"github.com/aio-dev/aio/internal/reaper"
	"github.com/aio-dev/aio/internal/store"
	"github.com/aio-dev/aio/internal/workspace"
)

var orchestrateSessionID string

// orchestrateCmd is the hidden process "aio start" launches in its own
// tmux pane: it owns the OrchestratorLoop, Reaper, and Notifier for the
// lifetime of the session. It is also usable directly when tmux isn't
// installed (run it by hand in another terminal).
var orchestrateCmd = &cobra.Command{
	Use:    "orchestrate",
	Short:  "Run the Orchestrator, Reaper, and Notifier against the store (internal; normally launched by \"start\")",
	Hidden: true,
	RunE:   runOrchestrate,
}

func init() {
	orchestrateCmd.Flags().StringVar(&orchestrateSessionID, "session", "", "session id this process belongs to")
	rootCmd.AddCommand(orchestrateCmd)
}

func runOrchestrate(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return fmt.Errorf("aio: load config: %w", err)
	}
	if orchestrateSessionID == "" {
		orchestrateSessionID = os.Getenv("AIO_SESSION_ID")
	}
	logger := newLogger(cfg)
	logger.Printf("orchestrate: session %s starting", orchestrateSessionID)

	st, err := store.Open(absStorePath(cfg))
	if err != nil {
		return fmt.Errorf("aio: open store: %w", err)
	}
	defer st.Close()

	ws := workspace.NewManager(cfg.RepoRoot, logger)
	panes := panemgr.NewManager(logger)
	osNotify := orchestrator.NewOSNotify(logger)

	loop := orchestrator.New(st, ws, panes, osNotify, logger,
		orchestrator.WithRetryCeiling(cfg.EventRetryCeil),
		orchestrator.WithReviewerDir(cfg.RepoRoot),
		orchestrator.WithWorkerCommand(cfg.WorkerCmd),
		orchestrator.WithReviewerCommand(cfg.ReviewerCmd),
	)

	reap := reaper.New(st, ws, panes, osNotify, logger,
		reaper.WithInterval(cfg.ReaperInterval),
		reaper.WithHeartbeatTimeout(cfg.HeartbeatTimeout),
	)

	recipients := func() []notifier.Recipient {
		workers, err := st.ListActiveWorkers()
		if err != nil {
			logger.Printf("orchestrate: list active workers: %v", err)
			return nil
		}
		out := make([]notifier.Recipient, 0, len(workers)+1)
		for _, w := range workers {
			out = append(out, notifier.Recipient{
				ID:       "worker:" + w.TaskID,
				WorkerID: w.ID,
				Handle:   w.PaneHandle,
				Role:     "worker",
			})
		}
		out = append(out, notifier.Recipient{
			ID:     "reviewer",
			Handle: orchestrator.ReviewerPaneHandle,
			Role:   "reviewer",
		})
		return out
	}

	notif := notifier.New(st, panes, recipients, st.SignalPath(), logger,
		notifier.WithPollInterval(cfg.NotifierPoll),
		notifier.WithWorkerFlagger(reap),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("orchestrate: received %s, shutting down", sig)
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); loop.Run(ctx) }()
	go func() { defer wg.Done(); reap.Run(ctx) }()
	go func() { defer wg.Done(); notif.Run(ctx) }()
	wg.Wait()

	logger.Printf("orchestrate: session %s stopped", orchestrateSessionID)
	return nil
}
