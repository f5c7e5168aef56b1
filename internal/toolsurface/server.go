// Package toolsurface exposes the role-scoped operation set Planner,
// Worker, and Reviewer agents invoke over MCP: submit_task, list_tasks,
// heartbeat, progress, create_pr, check_events, execute_command,
// claim_next_review, submit_review.
//
// Role scoping is structural, not a per-call argument check: RegisterForRole
// is a table lookup from role to its operation subset, and each generated
// tool config (cmd/aio serve-tools) only ever registers the tools its own
// role is granted. A Planner's MCP session has no claim_next_review tool to
// call in the first place.
package toolsurface

import (
	"log"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/aio-dev/aio/internal/safety"
	"github.com/aio-dev/aio/internal/store"
	"github.com/aio-dev/aio/internal/workspace"
)

// claimTTL is how long a claim_next_review claim shields a task from being
// handed to another reviewer. A reviewer that stalls past this simply loses
// the claim; the task is still in review and gets re-offered.
const claimTTL = 10 * time.Minute

// Server wires Store, WorkspaceMgr, and SafetyGuard together behind the
// MCP tool registrations.
type Server struct {
	store     *store.Store
	workspace *workspace.Manager
	guard     *safety.Guard
	logger    *log.Logger

	claimMu sync.Mutex
	claims  map[string]time.Time // taskID -> claim expiry
}

// NewServer constructs a Server. guard may be nil, in which case
// execute_command runs unguarded.
func NewServer(st *store.Store, ws *workspace.Manager, guard *safety.Guard, logger *log.Logger) *Server {
	return &Server{store: st, workspace: ws, guard: guard, logger: logger, claims: make(map[string]time.Time)}
}

// claimReview records a live claim on taskID, returning false if another
// unexpired claim already holds it.
func (srv *Server) claimReview(taskID string) bool {
	srv.claimMu.Lock()
	defer srv.claimMu.Unlock()
	if expiry, ok := srv.claims[taskID]; ok && time.Now().Before(expiry) {
		return false
	}
	srv.claims[taskID] = time.Now().Add(claimTTL)
	return true
}

// releaseReview drops any claim on taskID, after a review is submitted.
func (srv *Server) releaseReview(taskID string) {
	srv.claimMu.Lock()
	defer srv.claimMu.Unlock()
	delete(srv.claims, taskID)
}

// Register installs every ToolSurface operation on s, regardless of role.
// Used by tests and by any host that wants the full surface on one server.
func (srv *Server) Register(s *server.MCPServer) {
	srv.registerSubmitTask(s)
	srv.registerListTasks(s)
	srv.registerHeartbeat(s)
	srv.registerProgress(s)
	srv.registerCreatePR(s)
	srv.registerCheckEvents(s)
	srv.registerExecuteCommand(s)
	srv.registerClaimNextReview(s)
	srv.registerSubmitReview(s)
}

// RegisterForRole installs only the operations granted to role ("planner",
// "worker", "reviewer"); an unknown
// role gets no tools. This is how cmd/aio's serve-tools command keeps a
// Planner's MCP session from being able to call claim_next_review, etc. —
// the host process only ever exposes the subset its role is configured for.
func (srv *Server) RegisterForRole(s *server.MCPServer, role string) {
	switch role {
	case "planner":
		srv.registerSubmitTask(s)
		srv.registerListTasks(s)
	case "worker":
		srv.registerHeartbeat(s)
		srv.registerProgress(s)
		srv.registerCreatePR(s)
		srv.registerCheckEvents(s)
		srv.registerExecuteCommand(s)
	case "reviewer":
		srv.registerClaimNextReview(s)
		srv.registerSubmitReview(s)
	}
}
