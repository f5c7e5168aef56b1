package toolsurface

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aio-dev/aio/internal/domain"
)

func (srv *Server) registerSubmitTask(s *server.MCPServer) {
	s.AddTool(
		mcp.NewTool("submit_task",
			mcp.WithDescription("Submit a new task for the orchestrator to route to a Worker."),
			mcp.WithString("description", mcp.Required(), mcp.Description("What the worker should accomplish")),
			mcp.WithString("context", mcp.Description("Background context for the worker")),
			mcp.WithString("branch_name", mcp.Description("Override the default branch name for the worker's workspace")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			description, _ := args["description"].(string)
			if description == "" {
				return nil, invalidArgument("description is required")
			}
			taskContext, _ := args["context"].(string)
			branchName, _ := args["branch_name"].(string)

			taskID := uuid.NewString()
			if err := srv.store.UpsertTask(domain.Task{
				ID:          taskID,
				Status:      domain.TaskPending,
				Description: description,
				Context:     taskContext,
				BranchName:  branchName,
			}); err != nil {
				return nil, wrapStoreErr(err)
			}

			payload, _ := json.Marshal(domain.TaskCreatePayload{
				TaskID:      taskID,
				Description: description,
				Context:     taskContext,
				BranchName:  branchName,
			})
			if _, err := srv.store.AppendEvent(domain.EventTaskCreate, taskID, payload); err != nil {
				return nil, wrapStoreErr(err)
			}

			srv.logger.Printf("toolsurface: task %s submitted", taskID)
			return mcp.NewToolResultText(fmt.Sprintf("task %s created (pending)", taskID)), nil
		},
	)
}

func (srv *Server) registerListTasks(s *server.MCPServer) {
	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List all tasks and their current status."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tasks, err := srv.store.ListTasks()
			if err != nil {
				return nil, wrapStoreErr(err)
			}
			if len(tasks) == 0 {
				return mcp.NewToolResultText("no tasks"), nil
			}

			result := ""
			for _, t := range tasks {
				result += fmt.Sprintf("%s [%s] %s\n", t.ID, t.Status, t.Description)
			}
			return mcp.NewToolResultText(result), nil
		},
	)
}
