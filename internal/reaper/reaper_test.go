package reaper

import (
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aio-dev/aio/internal/domain"
)

type fakeStore struct {
	workers     []domain.Worker
	tasks       map[string]domain.Task
	removedIDs  []string
	statusCalls map[string]domain.TaskStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]domain.Task), statusCalls: make(map[string]domain.TaskStatus)}
}

func (f *fakeStore) ListActiveWorkers() ([]domain.Worker, error) { return f.workers, nil }

func (f *fakeStore) GetTask(id string) (domain.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, errNotFound
	}
	return t, nil
}

func (f *fakeStore) UpdateTaskStatus(id string, to domain.TaskStatus, assignWorkerID string) error {
	f.statusCalls[id] = to
	t := f.tasks[id]
	t.Status = to
	f.tasks[id] = t
	return nil
}

func (f *fakeStore) RemoveWorker(id string) error {
	f.removedIDs = append(f.removedIDs, id)
	return nil
}

type errType struct{ msg string }

func (e *errType) Error() string { return e.msg }

var errNotFound = &errType{"not found"}

type fakeWorkspace struct {
	removed []string
}

func (f *fakeWorkspace) RemoveWorkspace(path string) error {
	f.removed = append(f.removed, path)
	return nil
}

type fakePanes struct {
	closed []string
}

func (f *fakePanes) ClosePane(handle string) error {
	f.closed = append(f.closed, handle)
	return nil
}

type fakeNotifier struct {
	notified []string
}

func (f *fakeNotifier) NotifyFailure(taskID, reason string) {
	f.notified = append(f.notified, taskID+":"+reason)
}

func testLogger() *log.Logger { return log.New(os.Stderr, "", 0) }

func TestSweep_reapsStaleWorker(t *testing.T) {
	st := newFakeStore()
	ws := &fakeWorkspace{}
	panes := &fakePanes{}
	notif := &fakeNotifier{}

	st.tasks["t1"] = domain.Task{ID: "t1", Status: domain.TaskInProgress, WorktreePath: "/tmp/wt1"}
	st.workers = []domain.Worker{
		{ID: "w1", TaskID: "t1", PaneHandle: "pane-w1", LastHeartbeat: time.Now().Add(-60 * time.Second)},
	}

	r := New(st, ws, panes, notif, testLogger(), WithHeartbeatTimeout(30*time.Second))
	r.Sweep()

	if st.statusCalls["t1"] != domain.TaskFailed {
		t.Errorf("task status = %s, want failed", st.statusCalls["t1"])
	}
	if len(ws.removed) != 1 || ws.removed[0] != "/tmp/wt1" {
		t.Errorf("workspace not removed: %v", ws.removed)
	}
	if len(panes.closed) != 1 || panes.closed[0] != "pane-w1" {
		t.Errorf("pane not closed: %v", panes.closed)
	}
	if len(st.removedIDs) != 1 || st.removedIDs[0] != "w1" {
		t.Errorf("worker not removed: %v", st.removedIDs)
	}
	if len(notif.notified) != 1 {
		t.Errorf("expected one failure notification, got %d", len(notif.notified))
	}
}

func TestSweep_ignoresFreshHeartbeats(t *testing.T) {
	st := newFakeStore()
	ws := &fakeWorkspace{}
	panes := &fakePanes{}

	st.tasks["t1"] = domain.Task{ID: "t1", Status: domain.TaskInProgress}
	st.workers = []domain.Worker{
		{ID: "w1", TaskID: "t1", LastHeartbeat: time.Now()},
	}

	r := New(st, ws, panes, nil, testLogger(), WithHeartbeatTimeout(30*time.Second))
	r.Sweep()

	if len(st.removedIDs) != 0 {
		t.Errorf("fresh worker should not be reaped, removed: %v", st.removedIDs)
	}
}

func TestSweep_reapsAbandonedWorkerDespiteFreshHeartbeat(t *testing.T) {
	st := newFakeStore()
	ws := &fakeWorkspace{}
	panes := &fakePanes{}
	notif := &fakeNotifier{}

	st.tasks["t1"] = domain.Task{ID: "t1", Status: domain.TaskInProgress, WorktreePath: "/tmp/wt1"}
	st.workers = []domain.Worker{
		{ID: "w1", TaskID: "t1", PaneHandle: "pane-w1", LastHeartbeat: time.Now()},
	}

	r := New(st, ws, panes, notif, testLogger())
	r.MarkAbandoned("w1")
	r.Sweep()

	if len(st.removedIDs) != 1 || st.removedIDs[0] != "w1" {
		t.Errorf("abandoned worker not reaped: %v", st.removedIDs)
	}
	if len(notif.notified) != 1 || !strings.Contains(notif.notified[0], "pane lost") {
		t.Errorf("notified = %v, want one 'pane lost' failure", notif.notified)
	}

	// The flag is consumed by the sweep; a still-fresh worker with the same
	// id is not reaped again.
	st.removedIDs = nil
	st.workers = []domain.Worker{
		{ID: "w1", TaskID: "t1", LastHeartbeat: time.Now()},
	}
	r.Sweep()
	if len(st.removedIDs) != 0 {
		t.Errorf("consumed abandoned flag should not re-reap, removed: %v", st.removedIDs)
	}
}

func TestSweep_alreadyTerminalTaskNotDoubleNotified(t *testing.T) {
	st := newFakeStore()
	ws := &fakeWorkspace{}
	panes := &fakePanes{}
	notif := &fakeNotifier{}

	st.tasks["t1"] = domain.Task{ID: "t1", Status: domain.TaskFailed}
	st.workers = []domain.Worker{
		{ID: "w1", TaskID: "t1", LastHeartbeat: time.Now().Add(-60 * time.Second)},
	}

	r := New(st, ws, panes, notif, testLogger(), WithHeartbeatTimeout(30*time.Second))
	r.Sweep()

	if len(notif.notified) != 0 {
		t.Errorf("terminal task should not be re-notified, got %v", notif.notified)
	}
	if len(st.removedIDs) != 1 {
		t.Errorf("worker should still be removed even if task already terminal")
	}
}
