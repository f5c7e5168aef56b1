package workspace

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Info describes a worker's isolated workspace.
type Info struct {
	WorkerID   string    `json:"worker_id"`
	TaskID     string    `json:"task_id"`
	Path       string    `json:"path"`
	Branch     string    `json:"branch"`
	BaseBranch string    `json:"base_branch"`
	CreatedAt  time.Time `json:"created_at"`
}

// Manager implements the WorkspaceMgr contract: one branch-isolated worktree
// per worker, materialized under "<repo>/.worktrees/<worker_id>" and forked
// from the branch currently checked out at repoRoot (origin is not fetched
// and is not used as the base), with push and PR creation shelling out to
// git and gh respectively.
type Manager struct {
	repoRoot string
	logger   *log.Logger

	mu     sync.Mutex
	active map[string]*Info // workerID -> info
}

// NewManager creates a Manager rooted at repoRoot, a checkout of the target
// repository.
func NewManager(repoRoot string, logger *log.Logger) *Manager {
	return &Manager{
		repoRoot: repoRoot,
		logger:   logger,
		active:   make(map[string]*Info),
	}
}

// CreateWorkspace forks a branch (branch, if non-empty, else
// "task/<first 8 of taskID>") off the repository's current line and
// materializes it at "<repo>/.worktrees/<workerID>". If the branch already
// exists it's reused (attached to the new worktree) rather than recreated.
// Calling it again for the same workerID with an existing live worktree
// returns that worktree unchanged.
func (m *Manager) CreateWorkspace(taskID, workerID, branch string) (path, branchOut string, err error) {
	if !isGitRepo(m.repoRoot) {
		return "", "", fmt.Errorf("workspace: %s is not a git repository", m.repoRoot)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if info, ok := m.active[workerID]; ok {
		if fileExists(info.Path) {
			return info.Path, info.Branch, nil
		}
		delete(m.active, workerID)
	}

	if branch == "" {
		branch = "task/" + shortID(taskID)
	}
	wtPath := filepath.Join(m.repoRoot, ".worktrees", workerID)

	baseBranch, err := currentBranch(m.repoRoot)
	if err != nil {
		return "", "", fmt.Errorf("detect base branch: %w", err)
	}
	if baseBranch == "HEAD" {
		return "", "", fmt.Errorf("repository is in detached HEAD state; checkout a branch before creating workspaces")
	}

	if err := os.MkdirAll(filepath.Dir(wtPath), 0o755); err != nil {
		return "", "", fmt.Errorf("create worktree parent dir: %w", err)
	}

	// Reuse an existing branch (attach, don't create) rather than fail or
	// silently drop work a prior run already pushed to it.
	if branchExists(m.repoRoot, branch) {
		if err := worktreeAttach(m.repoRoot, wtPath, branch); err != nil {
			return "", "", fmt.Errorf("attach existing branch %s: %w", branch, err)
		}
	} else if err := worktreeAdd(m.repoRoot, wtPath, branch, baseBranch); err != nil {
		return "", "", fmt.Errorf("create worktree: %w", err)
	}

	info := &Info{
		WorkerID:   workerID,
		TaskID:     taskID,
		Path:       wtPath,
		Branch:     branch,
		BaseBranch: baseBranch,
		CreatedAt:  time.Now(),
	}
	m.active[workerID] = info

	m.logger.Printf("workspace: created worktree for %s at %s (branch: %s, base: %s)", workerID, wtPath, branch, baseBranch)
	return wtPath, branch, nil
}

// PushBranch publishes branch to origin, setting upstream on first push.
func (m *Manager) PushBranch(path, branch string) error {
	return pushBranch(path, branch)
}

// OpenPR opens a pull request from path's branch and returns its URL.
// Callers must have already pushed the branch; open_pr itself does not push,
// matching the write-then-commit ordering the Task's pr_url field depends on.
func (m *Manager) OpenPR(path, title, body string) (string, error) {
	branch, err := currentBranch(path)
	if err != nil {
		return "", fmt.Errorf("detect branch: %w", err)
	}
	return openPR(path, branch, title, body)
}

// RemoveWorkspace force-removes the working tree at path and, when path is a
// workspace this Manager created and still tracks, deletes its branch too.
// Never touches the shared repository at repoRoot itself.
func (m *Manager) RemoveWorkspace(path string) error {
	m.mu.Lock()
	var info *Info
	var workerID string
	for id, i := range m.active {
		if i.Path == path {
			info, workerID = i, id
			break
		}
	}
	if info != nil {
		delete(m.active, workerID)
	}
	m.mu.Unlock()

	branch := ""
	if info != nil {
		branch = info.Branch
	}
	return m.removeWorkspace(path, branch)
}

// RemoveAll tears down every tracked workspace.
func (m *Manager) RemoveAll() error {
	m.mu.Lock()
	active := make(map[string]*Info, len(m.active))
	for k, v := range m.active {
		active[k] = v
	}
	m.active = make(map[string]*Info)
	m.mu.Unlock()

	var firstErr error
	for _, info := range active {
		if err := m.removeWorkspace(info.Path, info.Branch); err != nil {
			m.logger.Printf("workspace: cleanup error for %s: %v", info.WorkerID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Path returns the worktree path tracked for workerID, or "" if none.
func (m *Manager) Path(workerID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.active[workerID]; ok {
		return info.Path
	}
	return ""
}

func (m *Manager) removeWorkspace(path, branch string) error {
	m.logger.Printf("workspace: removing worktree at %s", path)

	if err := worktreeRemove(m.repoRoot, path, true); err != nil {
		m.logger.Printf("workspace: git worktree remove failed, trying manual: %v", err)
		if err2 := os.RemoveAll(path); err2 != nil {
			return fmt.Errorf("remove worktree dir: %w (git: %v)", err2, err)
		}
	}

	_ = worktreePrune(m.repoRoot)

	if branch != "" && branchExists(m.repoRoot, branch) {
		if err := branchDelete(m.repoRoot, branch); err != nil {
			m.logger.Printf("workspace: warning: could not delete branch %s: %v", branch, err)
		}
	}

	m.logger.Printf("workspace: removed worktree at %s", path)
	return nil
}

// shortID returns the first 8 characters of id, or id itself if shorter.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
