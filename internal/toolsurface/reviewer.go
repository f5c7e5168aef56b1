package toolsurface

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aio-dev/aio/internal/domain"
)

func (srv *Server) registerClaimNextReview(s *server.MCPServer) {
	s.AddTool(
		mcp.NewTool("claim_next_review",
			mcp.WithDescription("Claim the oldest task waiting in review that no other reviewer holds."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tasks, err := srv.store.ListTasksByStatus(domain.TaskReview)
			if err != nil {
				return nil, wrapStoreErr(err)
			}
			for _, t := range tasks {
				if !srv.claimReview(t.ID) {
					continue
				}
				out, _ := json.Marshal(t)
				return mcp.NewToolResultText(string(out)), nil
			}
			return mcp.NewToolResultText("no tasks awaiting review"), nil
		},
	)
}

func (srv *Server) registerSubmitReview(s *server.MCPServer) {
	s.AddTool(
		mcp.NewTool("submit_review",
			mcp.WithDescription("Approve or deny a task in review."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task being reviewed")),
			mcp.WithBoolean("approved", mcp.Required(), mcp.Description("Whether the review passed")),
			mcp.WithString("feedback", mcp.Description("Feedback for the worker when denied")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			taskID, _ := args["task_id"].(string)
			if taskID == "" {
				return nil, invalidArgument("task_id is required")
			}
			approved, _ := args["approved"].(bool)
			feedback, _ := args["feedback"].(string)

			if _, err := srv.store.GetTask(taskID); err != nil {
				return nil, wrapStoreErr(err)
			}

			var (
				payload []byte
				evType  domain.EventType
			)
			if approved {
				evType = domain.EventReviewApproved
				payload, _ = json.Marshal(domain.ReviewApprovedPayload{TaskID: taskID})
			} else {
				evType = domain.EventReviewDenied
				payload, _ = json.Marshal(domain.ReviewDeniedPayload{TaskID: taskID, Feedback: feedback})
			}

			if _, err := srv.store.AppendEvent(evType, taskID, payload); err != nil {
				return nil, wrapStoreErr(err)
			}
			srv.releaseReview(taskID)

			return mcp.NewToolResultText(fmt.Sprintf("review recorded for task %s (approved=%v)", taskID, approved)), nil
		},
	)
}
