package toolsurface

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/aio-dev/aio/internal/domain"
)

func TestSubmitTask_createsPendingTaskAndEvent(t *testing.T) {
	s, _, st := testSetup(t)

	result, err := callTool(t, s, "submit_task", map[string]any{
		"description": "add health-check endpoint",
		"context":     "the service has no liveness probe",
	})
	if err != nil {
		t.Fatalf("submit_task: %v", err)
	}
	if text := resultText(t, result); !strings.Contains(text, "pending") {
		t.Errorf("result = %q, want mention of pending", text)
	}

	tasks, err := st.ListTasks()
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("len(tasks) = %d, want 1", len(tasks))
	}
	if tasks[0].Status != domain.TaskPending {
		t.Errorf("status = %s, want %s", tasks[0].Status, domain.TaskPending)
	}
	if tasks[0].Description != "add health-check endpoint" {
		t.Errorf("description = %q", tasks[0].Description)
	}

	events, err := st.UnprocessedEvents(10)
	if err != nil {
		t.Fatalf("UnprocessedEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Type != domain.EventTaskCreate {
		t.Errorf("event type = %s, want %s", events[0].Type, domain.EventTaskCreate)
	}
	var payload domain.TaskCreatePayload
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.TaskID != tasks[0].ID {
		t.Errorf("payload.TaskID = %s, want %s", payload.TaskID, tasks[0].ID)
	}
	if payload.Context != "the service has no liveness probe" {
		t.Errorf("payload.Context = %q", payload.Context)
	}
}

func TestSubmitTask_missingDescription(t *testing.T) {
	s, _, st := testSetup(t)

	if _, err := callTool(t, s, "submit_task", map[string]any{"description": ""}); err == nil {
		t.Fatal("submit_task with empty description succeeded, want invalid_argument")
	}

	tasks, err := st.ListTasks()
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("len(tasks) = %d after rejected submit, want 0", len(tasks))
	}
}

func TestSubmitTask_rapidSubmissionsGetContiguousSeqs(t *testing.T) {
	s, _, st := testSetup(t)

	for i := 0; i < 5; i++ {
		if _, err := callTool(t, s, "submit_task", map[string]any{"description": "task"}); err != nil {
			t.Fatalf("submit_task #%d: %v", i, err)
		}
	}

	events, err := st.UnprocessedEvents(10)
	if err != nil {
		t.Fatalf("UnprocessedEvents: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("len(events) = %d, want 5", len(events))
	}
	for i, e := range events {
		if e.Seq != int64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}
}

func TestListTasks(t *testing.T) {
	s, _, _ := testSetup(t)

	result, err := callTool(t, s, "list_tasks", nil)
	if err != nil {
		t.Fatalf("list_tasks: %v", err)
	}
	if text := resultText(t, result); text != "no tasks" {
		t.Errorf("empty list = %q, want %q", text, "no tasks")
	}

	if _, err := callTool(t, s, "submit_task", map[string]any{"description": "first task"}); err != nil {
		t.Fatalf("submit_task: %v", err)
	}

	result, err = callTool(t, s, "list_tasks", nil)
	if err != nil {
		t.Fatalf("list_tasks: %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "first task") || !strings.Contains(text, string(domain.TaskPending)) {
		t.Errorf("list = %q, want description and status", text)
	}
}
