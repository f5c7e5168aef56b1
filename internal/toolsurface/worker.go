package toolsurface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aio-dev/aio/internal/domain"
	"github.com/aio-dev/aio/internal/store"
)

const (
	executeCommandDefaultTimeout = 30 * time.Second
	executeCommandOutputCap      = 64 * 1024
)

func (srv *Server) registerHeartbeat(s *server.MCPServer) {
	s.AddTool(
		mcp.NewTool("heartbeat",
			mcp.WithDescription("Signal liveness for the calling Worker."),
			mcp.WithString("worker_id", mcp.Required(), mcp.Description("The calling Worker's id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			workerID, _ := req.GetArguments()["worker_id"].(string)
			if workerID == "" {
				return nil, invalidArgument("worker_id is required")
			}
			if err := srv.store.UpdateHeartbeat(workerID); err != nil {
				return nil, wrapStoreErr(err)
			}
			return mcp.NewToolResultText("ok"), nil
		},
	)
}

func (srv *Server) registerProgress(s *server.MCPServer) {
	s.AddTool(
		mcp.NewTool("progress",
			mcp.WithDescription("Report a progress update for the calling Worker's task. Does not emit an event."),
			mcp.WithString("worker_id", mcp.Required(), mcp.Description("The calling Worker's id")),
			mcp.WithString("status", mcp.Required(), mcp.Description("Short status label")),
			mcp.WithString("message", mcp.Description("Progress detail")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			workerID, _ := args["worker_id"].(string)
			status, _ := args["status"].(string)
			message, _ := args["message"].(string)
			if workerID == "" || status == "" {
				return nil, invalidArgument("worker_id and status are required")
			}
			w, err := srv.store.GetWorker(workerID)
			if err != nil {
				return nil, wrapStoreErr(err)
			}
			srv.logger.Printf("progress: worker=%s task=%s status=%s message=%s", workerID, w.TaskID, status, message)
			return mcp.NewToolResultText("ok"), nil
		},
	)
}

func (srv *Server) registerCreatePR(s *server.MCPServer) {
	s.AddTool(
		mcp.NewTool("create_pr",
			mcp.WithDescription("Push the task's branch and open a pull request. Idempotent per task."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task to open a PR for")),
			mcp.WithString("title", mcp.Required(), mcp.Description("PR title")),
			mcp.WithString("body", mcp.Description("PR body")),
			mcp.WithString("summary", mcp.Description("One-line summary recorded on the review-requested event")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			taskID, _ := args["task_id"].(string)
			title, _ := args["title"].(string)
			body, _ := args["body"].(string)
			summary, _ := args["summary"].(string)
			if taskID == "" || title == "" {
				return nil, invalidArgument("task_id and title are required")
			}

			task, err := srv.store.GetTask(taskID)
			if err != nil {
				return nil, wrapStoreErr(err)
			}
			if task.PRURL != "" {
				return mcp.NewToolResultText(task.PRURL), nil
			}
			if task.WorktreePath == "" || task.BranchName == "" {
				return nil, preconditionFailed("task %s has no workspace; create_workspace must run before create_pr", taskID)
			}

			if err := srv.workspace.PushBranch(task.WorktreePath, task.BranchName); err != nil {
				return nil, wrapStoreErr(fmt.Errorf("%w: push branch: %v", store.ErrTransientIO, err))
			}
			prURL, err := srv.workspace.OpenPR(task.WorktreePath, title, body)
			if err != nil {
				return nil, wrapStoreErr(fmt.Errorf("%w: open pr: %v", store.ErrTransientIO, err))
			}

			finalURL, err := srv.store.SetPRURL(taskID, prURL)
			if err != nil {
				return nil, wrapStoreErr(err)
			}

			payload, _ := json.Marshal(domain.ReviewRequestedPayload{TaskID: taskID, PRURL: finalURL, Summary: summary})
			if _, err := srv.store.AppendEvent(domain.EventReviewRequested, taskID, payload); err != nil {
				return nil, wrapStoreErr(err)
			}

			return mcp.NewToolResultText(finalURL), nil
		},
	)
}

func (srv *Server) registerCheckEvents(s *server.MCPServer) {
	s.AddTool(
		mcp.NewTool("check_events",
			mcp.WithDescription("Read unprocessed events targeted at this worker's task."),
			mcp.WithString("worker_id", mcp.Required(), mcp.Description("The calling Worker's id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			workerID, _ := req.GetArguments()["worker_id"].(string)
			if workerID == "" {
				return nil, invalidArgument("worker_id is required")
			}
			w, err := srv.store.GetWorker(workerID)
			if err != nil {
				return nil, wrapStoreErr(err)
			}

			shouldTerminate := false
			if w.TaskID != "" {
				task, err := srv.store.GetTask(w.TaskID)
				switch {
				case err != nil:
					// Task gone entirely: nothing left to watch for, terminate.
					shouldTerminate = true
				default:
					shouldTerminate = domain.Terminal(task.Status)
				}
			}

			events, err := srv.store.UnprocessedEvents(100)
			if err != nil {
				return nil, wrapStoreErr(err)
			}
			var mine []domain.Event
			for _, e := range events {
				if e.TaskID == w.TaskID {
					mine = append(mine, e)
				}
			}

			result := struct {
				ShouldTerminate bool           `json:"should_terminate"`
				Events          []domain.Event `json:"events"`
			}{shouldTerminate, mine}
			out, _ := json.Marshal(result)
			return mcp.NewToolResultText(string(out)), nil
		},
	)
}

func (srv *Server) registerExecuteCommand(s *server.MCPServer) {
	s.AddTool(
		mcp.NewTool("execute_command",
			mcp.WithDescription("Run a shell command in the worker's workspace, subject to SafetyGuard."),
			mcp.WithString("cmd", mcp.Required(), mcp.Description("Command to run")),
			mcp.WithString("cwd", mcp.Description("Working directory")),
			mcp.WithNumber("timeout_seconds", mcp.Description("Override the default 30s timeout")),
			mcp.WithBoolean("background", mcp.Description("Start the command without waiting for it to finish")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			cmdStr, _ := args["cmd"].(string)
			cwd, _ := args["cwd"].(string)
			if cmdStr == "" {
				return nil, invalidArgument("cmd is required")
			}

			if srv.guard != nil {
				if err := srv.guard.Check(cmdStr); err != nil {
					return nil, blocked(err.Error())
				}
			}

			if background, _ := args["background"].(bool); background {
				cmd := exec.Command("sh", "-c", cmdStr)
				cmd.Dir = cwd
				if err := cmd.Start(); err != nil {
					return nil, invalidArgument("start background command: %v", err)
				}
				pid := cmd.Process.Pid
				go func() { _ = cmd.Wait() }()
				result := struct {
					Background bool `json:"background"`
					PID        int  `json:"pid"`
				}{true, pid}
				out, _ := json.Marshal(result)
				return mcp.NewToolResultText(string(out)), nil
			}

			timeout := executeCommandDefaultTimeout
			if v, ok := args["timeout_seconds"].(float64); ok && v > 0 {
				timeout = time.Duration(v) * time.Second
			}

			execCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(execCtx, "sh", "-c", cmdStr)
			cmd.Dir = cwd

			var buf bytes.Buffer
			limited := &limitWriter{w: &buf, limit: executeCommandOutputCap}
			cmd.Stdout = limited
			cmd.Stderr = limited

			runErr := cmd.Run()
			timedOut := execCtx.Err() == context.DeadlineExceeded

			exitCode := 0
			if runErr != nil {
				if exitErr, ok := runErr.(*exec.ExitError); ok {
					exitCode = exitErr.ExitCode()
				} else if !timedOut {
					exitCode = -1
				}
			}

			result := struct {
				ExitCode int    `json:"exit_code"`
				Output   string `json:"output"`
				TimedOut bool   `json:"timed_out"`
			}{exitCode, limited.output(), timedOut}
			out, _ := json.Marshal(result)
			return mcp.NewToolResultText(string(out)), nil
		},
	)
}

// limitWriter caps retained output at limit bytes, appending a truncation
// marker once the cap is hit, rather than buffering unbounded subprocess output.
type limitWriter struct {
	w       io.Writer
	limit   int
	written int
	capped  bool
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if l.written >= l.limit {
		l.capped = true
		return len(p), nil
	}
	n := len(p)
	if l.written+n > l.limit {
		n = l.limit - l.written
		l.capped = true
	}
	written, err := l.w.Write(p[:n])
	l.written += written
	return len(p), err
}

func (l *limitWriter) output() string {
	buf, ok := l.w.(*bytes.Buffer)
	if !ok {
		return ""
	}
	s := buf.String()
	if l.capped {
		s += "...[truncated]"
	}
	return s
}
