// Package notifier turns "new events exist for recipient X" into a wake-up
// keystroke delivered to X's pane. It is an optimization, not a correctness
// requirement: agents remain correct even if a wake-up is lost, since they
// poll check_events on their own cadence.
//
// Delivery is a debounced fsnotify watch on a signal file the store touches
// on every append, with a poll-interval fallback, tracking one delivery
// cursor per recipient.
package notifier

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aio-dev/aio/internal/domain"
)

const defaultDebounce = 150 * time.Millisecond

// Store is the subset of *store.Store the Notifier reads.
type Store interface {
	UnprocessedEvents(limit int) ([]domain.Event, error)
	CursorGet(recipient string) (int64, error)
	CursorPut(recipient string, seq int64) error
}

// PaneSender is the subset of *panemgr.Manager the Notifier uses to deliver
// wake-ups. Sending to a recipient whose pane is gone (the user closed it
// externally) fails with panemgr.ErrPaneNotFound; the Notifier responds by
// dropping the recipient from tracking and flagging the bound worker as
// abandoned for the reaper's next tick.
type PaneSender interface {
	SendText(handle, text string) error
}

// WorkerFlagger receives workers whose pane was lost, so the reaper can
// collect them on its next sweep regardless of heartbeat freshness.
// *reaper.Reaper implements it.
type WorkerFlagger interface {
	MarkAbandoned(workerID string)
}

// Recipient is one wake-up target: a pane handle plus the role used to
// template the wake-up text.
type Recipient struct {
	ID       string // cursor key, e.g. "worker:<task_id>" or "reviewer"
	WorkerID string // bound Worker, empty for the reviewer seat
	Handle   string // pane handle to send the wake-up into
	Role     string // "planner", "worker", "reviewer" — advisory template hint
}

// RecipientSource supplies the current set of recipients to check on every
// tick. The Orchestrator owns this list (it knows which panes are live);
// Notifier only reads it.
type RecipientSource func() []Recipient

// Notifier watches the signal file the Store touches on every AppendEvent
// and, on change (or on the poll fallback), advances each recipient's
// DeliveryCursor past any new event and pushes a role-templated wake-up.
type Notifier struct {
	store        Store
	panes        PaneSender
	recipients   RecipientSource
	flagger      WorkerFlagger
	signalPath   string
	pollInterval time.Duration
	debounce     time.Duration
	logger       *log.Logger

	mu            sync.Mutex
	debounceTimer *time.Timer
	dropped       map[string]bool // recipient IDs whose pane was lost
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithPollInterval overrides the fallback poll cadence (default 1s,
// matching the orchestration loop's idle sleep).
func WithPollInterval(d time.Duration) Option {
	return func(n *Notifier) { n.pollInterval = d }
}

// WithWorkerFlagger sets where pane-loss drops report the bound worker.
func WithWorkerFlagger(f WorkerFlagger) Option {
	return func(n *Notifier) { n.flagger = f }
}

// New builds a Notifier. signalPath is touched by the Store on every
// AppendEvent (see store.SignalPath); an empty signalPath disables fsnotify
// and relies solely on the poll fallback.
func New(st Store, panes PaneSender, recipients RecipientSource, signalPath string, logger *log.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		store:        st,
		panes:        panes,
		recipients:   recipients,
		signalPath:   signalPath,
		pollInterval: time.Second,
		debounce:     defaultDebounce,
		logger:       logger,
		dropped:      make(map[string]bool),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Run watches for new events and pushes wake-ups until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	var watcher *fsnotify.Watcher
	if n.signalPath != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			n.logger.Printf("notifier: fsnotify init failed (%v), poll-only", err)
		} else if err := w.Add(filepath.Dir(n.signalPath)); err != nil {
			n.logger.Printf("notifier: fsnotify watch failed (%v), poll-only", err)
			_ = w.Close()
		} else {
			watcher = w
			defer watcher.Close()
			go n.watchLoop(ctx, watcher)
		}
	}

	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.Tick()
		}
	}
}

func (n *Notifier) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	signalName := filepath.Base(n.signalPath)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != signalName {
				continue
			}
			n.debouncedTick()
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (n *Notifier) debouncedTick() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.debounceTimer != nil {
		n.debounceTimer.Stop()
	}
	n.debounceTimer = time.AfterFunc(n.debounce, n.Tick)
}

// Tick runs one check-and-push cycle: for every known recipient, compare the
// highest seq among its pending events against its DeliveryCursor, and if
// behind, push one wake-up and advance the cursor to the max observed seq.
func (n *Notifier) Tick() {
	events, err := n.store.UnprocessedEvents(500)
	if err != nil {
		n.logger.Printf("notifier: unprocessed events: %v", err)
		return
	}
	if len(events) == 0 {
		return
	}

	for _, r := range n.recipients() {
		if n.isDropped(r.ID) {
			continue
		}
		n.tickRecipient(r, events)
	}
}

func (n *Notifier) isDropped(recipientID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropped[recipientID]
}

// dropRecipient stops tracking a recipient whose pane is gone: the cursor
// stays where it was, no further wake-ups are attempted, and the bound
// worker is handed to the reaper as abandoned. Wake-ups are advisory, so
// losing them costs nothing beyond the worker teardown the reaper performs.
func (n *Notifier) dropRecipient(r Recipient, cause error) {
	n.logger.Printf("notifier: pane for %s (%s) is gone, dropping recipient: %v", r.ID, r.Handle, cause)
	n.mu.Lock()
	n.dropped[r.ID] = true
	n.mu.Unlock()
	if n.flagger != nil && r.WorkerID != "" {
		n.flagger.MarkAbandoned(r.WorkerID)
	}
}

func (n *Notifier) tickRecipient(r Recipient, events []domain.Event) {
	cursor, err := n.store.CursorGet(r.ID)
	if err != nil {
		n.logger.Printf("notifier: cursor get %s: %v", r.ID, err)
		return
	}

	var maxSeq int64
	pendingTypes := map[domain.EventType]bool{}
	for _, e := range events {
		if e.Seq <= cursor {
			continue
		}
		if !relevantTo(r, e) {
			continue
		}
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
		pendingTypes[e.Type] = true
	}
	if maxSeq == 0 {
		return
	}

	text := wakeupText(r.Role, pendingTypes)
	if err := n.panes.SendText(r.Handle, text); err != nil {
		n.dropRecipient(r, err)
		return
	}

	if err := n.store.CursorPut(r.ID, maxSeq); err != nil {
		n.logger.Printf("notifier: cursor put %s: %v", r.ID, err)
	}
}

// relevantTo reports whether event e is something recipient r cares about.
// Planner/global recipients (role "planner") see every event; reviewer
// recipients see every review-requested event (any reviewer may claim any
// pending review); worker recipients only see review outcomes for their own
// task, keyed via the recipient ID convention "worker:<task_id>".
func relevantTo(r Recipient, e domain.Event) bool {
	switch r.Role {
	case "reviewer":
		return e.Type == domain.EventReviewRequested
	case "worker":
		if e.Type != domain.EventReviewApproved && e.Type != domain.EventReviewDenied {
			return false
		}
		return r.ID == "worker:"+e.TaskID
	default:
		return true
	}
}

// wakeupText templates an advisory hint by role and pending event types.
// Content is a hint only; agents must reach correct behavior via
// check_events regardless of wording.
func wakeupText(role string, types map[domain.EventType]bool) string {
	switch role {
	case "reviewer":
		return "A task is awaiting review. Call claim_next_review."
	case "worker":
		if types[domain.EventReviewDenied] {
			return "Your review was denied with feedback. Call check_events."
		}
		return "Your review was approved. Call check_events."
	default:
		return fmt.Sprintf("New events are available (%d type(s)). Call list_tasks or check_events.", len(types))
	}
}
