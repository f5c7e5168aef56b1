package notifier

import (
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aio-dev/aio/internal/domain"
	"github.com/aio-dev/aio/internal/reaper"
)

type fakeStore struct {
	mu      sync.Mutex
	events  []domain.Event
	cursors map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{cursors: make(map[string]int64)}
}

func (f *fakeStore) UnprocessedEvents(limit int) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Event, len(f.events))
	copy(out, f.events)
	return out, nil
}

func (f *fakeStore) CursorGet(recipient string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursors[recipient], nil
}

func (f *fakeStore) CursorPut(recipient string, seq int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if seq > f.cursors[recipient] {
		f.cursors[recipient] = seq
	}
	return nil
}

type fakePanes struct {
	mu  sync.Mutex
	got map[string][]string
	err error
}

func newFakePanes() *fakePanes {
	return &fakePanes{got: make(map[string][]string)}
}

func (f *fakePanes) SendText(handle, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got[handle] = append(f.got[handle], text)
	return nil
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}

func TestTick_deliversAndAdvancesCursor(t *testing.T) {
	st := newFakeStore()
	panes := newFakePanes()
	recipients := []Recipient{{ID: "reviewer", Handle: "pane-reviewer", Role: "reviewer"}}

	n := New(st, panes, func() []Recipient { return recipients }, "", testLogger())

	st.events = append(st.events, domain.Event{Seq: 1, Type: domain.EventReviewRequested, TaskID: "t1"})
	n.Tick()

	if len(panes.got["pane-reviewer"]) != 1 {
		t.Fatalf("expected one wake-up, got %d", len(panes.got["pane-reviewer"]))
	}
	cursor, _ := st.CursorGet("reviewer")
	if cursor != 1 {
		t.Errorf("cursor = %d, want 1", cursor)
	}
}

func TestTick_cursorMonotonic(t *testing.T) {
	st := newFakeStore()
	panes := newFakePanes()
	recipients := []Recipient{{ID: "reviewer", Handle: "p", Role: "reviewer"}}
	n := New(st, panes, func() []Recipient { return recipients }, "", testLogger())

	st.events = []domain.Event{{Seq: 5, Type: domain.EventReviewRequested, TaskID: "t1"}}
	n.Tick()
	first, _ := st.CursorGet("reviewer")

	st.events = []domain.Event{{Seq: 5, Type: domain.EventReviewRequested, TaskID: "t1"}}
	n.Tick()
	second, _ := st.CursorGet("reviewer")

	if second < first {
		t.Errorf("cursor went backward: %d -> %d", first, second)
	}
}

func TestTick_noNewEventsNoWakeup(t *testing.T) {
	st := newFakeStore()
	panes := newFakePanes()
	recipients := []Recipient{{ID: "reviewer", Handle: "p", Role: "reviewer"}}
	n := New(st, panes, func() []Recipient { return recipients }, "", testLogger())

	st.events = []domain.Event{{Seq: 1, Type: domain.EventReviewRequested, TaskID: "t1"}}
	n.Tick()
	n.Tick()

	if len(panes.got["p"]) != 1 {
		t.Errorf("expected exactly one wake-up across two ticks with no new events, got %d", len(panes.got["p"]))
	}
}

func TestTick_sendFailureDoesNotAdvanceCursor(t *testing.T) {
	st := newFakeStore()
	panes := newFakePanes()
	panes.err = errSendFailed
	recipients := []Recipient{{ID: "reviewer", Handle: "p", Role: "reviewer"}}
	n := New(st, panes, func() []Recipient { return recipients }, "", testLogger())

	st.events = []domain.Event{{Seq: 1, Type: domain.EventReviewRequested, TaskID: "t1"}}
	n.Tick()

	cursor, _ := st.CursorGet("reviewer")
	if cursor != 0 {
		t.Errorf("cursor = %d, want 0 (unchanged on send failure)", cursor)
	}
}

type fakeFlagger struct {
	flagged []string
}

func (f *fakeFlagger) MarkAbandoned(workerID string) {
	f.flagged = append(f.flagged, workerID)
}

func TestTick_paneLossDropsRecipientAndFlagsWorker(t *testing.T) {
	st := newFakeStore()
	panes := newFakePanes()
	panes.err = errSendFailed
	flagger := &fakeFlagger{}
	recipients := []Recipient{{ID: "worker:t1", WorkerID: "w1", Handle: "pw", Role: "worker"}}
	n := New(st, panes, func() []Recipient { return recipients }, "", testLogger(), WithWorkerFlagger(flagger))

	st.events = []domain.Event{{Seq: 1, Type: domain.EventReviewApproved, TaskID: "t1"}}
	n.Tick()

	if len(flagger.flagged) != 1 || flagger.flagged[0] != "w1" {
		t.Fatalf("flagged = %v, want [w1]", flagger.flagged)
	}

	// Even if the handle starts resolving again, the dropped recipient gets
	// no further wake-ups and its cursor stays put.
	panes.err = nil
	n.Tick()
	if len(panes.got["pw"]) != 0 {
		t.Errorf("dropped recipient received %d wake-ups, want 0", len(panes.got["pw"]))
	}
	cursor, _ := st.CursorGet("worker:t1")
	if cursor != 0 {
		t.Errorf("cursor = %d, want 0 for dropped recipient", cursor)
	}
	if len(flagger.flagged) != 1 {
		t.Errorf("flagged = %v, want no re-flagging on later ticks", flagger.flagged)
	}
}

// Fakes for the reaper's dependencies, used to drive the full pane-loss
// path: Notifier drops the recipient, and the reaper's next sweep collects
// the bound worker.

type fakeReapStore struct {
	workers []domain.Worker
	tasks   map[string]domain.Task
	removed []string
}

func (f *fakeReapStore) ListActiveWorkers() ([]domain.Worker, error) { return f.workers, nil }
func (f *fakeReapStore) GetTask(id string) (domain.Task, error)      { return f.tasks[id], nil }
func (f *fakeReapStore) UpdateTaskStatus(id string, to domain.TaskStatus, assignWorkerID string) error {
	t := f.tasks[id]
	t.Status = to
	f.tasks[id] = t
	return nil
}
func (f *fakeReapStore) RemoveWorker(id string) error {
	f.removed = append(f.removed, id)
	return nil
}

type fakeReapWorkspace struct{ removed []string }

func (f *fakeReapWorkspace) RemoveWorkspace(path string) error {
	f.removed = append(f.removed, path)
	return nil
}

type fakeReapPanes struct{ closed []string }

func (f *fakeReapPanes) ClosePane(handle string) error {
	f.closed = append(f.closed, handle)
	return nil
}

func TestPaneLoss_workerReapedOnNextSweep(t *testing.T) {
	st := newFakeStore()
	panes := newFakePanes()
	panes.err = errSendFailed

	rs := &fakeReapStore{
		tasks: map[string]domain.Task{"t1": {ID: "t1", Status: domain.TaskInProgress}},
		workers: []domain.Worker{
			{ID: "w1", TaskID: "t1", PaneHandle: "pw", LastHeartbeat: time.Now()},
		},
	}
	reap := reaper.New(rs, &fakeReapWorkspace{}, &fakeReapPanes{}, nil, testLogger())

	recipients := []Recipient{{ID: "worker:t1", WorkerID: "w1", Handle: "pw", Role: "worker"}}
	n := New(st, panes, func() []Recipient { return recipients }, "", testLogger(), WithWorkerFlagger(reap))

	st.events = []domain.Event{{Seq: 1, Type: domain.EventReviewApproved, TaskID: "t1"}}
	n.Tick()
	reap.Sweep()

	if len(rs.removed) != 1 || rs.removed[0] != "w1" {
		t.Errorf("removed = %v, want [w1] (abandoned worker reaped despite fresh heartbeat)", rs.removed)
	}
	if rs.tasks["t1"].Status != domain.TaskFailed {
		t.Errorf("task status = %s, want failed", rs.tasks["t1"].Status)
	}
}

func TestTick_roleFiltering(t *testing.T) {
	st := newFakeStore()
	panes := newFakePanes()
	recipients := []Recipient{{ID: "worker:t1", Handle: "pw", Role: "worker"}}
	n := New(st, panes, func() []Recipient { return recipients }, "", testLogger())

	st.events = []domain.Event{{Seq: 1, Type: domain.EventReviewRequested, TaskID: "t1"}}
	n.Tick()
	if len(panes.got["pw"]) != 0 {
		t.Errorf("worker recipient should not wake on review-requested")
	}

	st.events = []domain.Event{{Seq: 2, Type: domain.EventReviewApproved, TaskID: "t1"}}
	n.Tick()
	if len(panes.got["pw"]) != 1 {
		t.Errorf("worker recipient should wake on review-approved")
	}
}

var errSendFailed = &sendErr{"pane gone"}

type sendErr struct{ msg string }

func (e *sendErr) Error() string { return e.msg }
