package orchestrator

import (
	"log"
	"os/exec"
	"runtime"
	"strings"
)

// OSNotify emits best-effort OS-level desktop notifications for terminal
// Task outcomes. It shells out to the platform's native notifier and fails
// open: an unavailable or erroring notifier only logs, it never blocks or
// fails the orchestrator/reaper loops that call it.
type OSNotify struct {
	logger *log.Logger
}

// NewOSNotify builds an OSNotify that logs failures to logger.
func NewOSNotify(logger *log.Logger) *OSNotify {
	return &OSNotify{logger: logger}
}

// NotifyFailure satisfies both orchestrator.FailureNotifier and
// reaper.FailureNotifier.
func (n *OSNotify) NotifyFailure(taskID, reason string) {
	n.send("aio task failed", "Task "+taskID+" failed ("+reason+")")
}

// NotifyCompleted announces a Task that reached completed, naming its PR
// when one was opened.
func (n *OSNotify) NotifyCompleted(taskID, prURL string) {
	body := "Task " + taskID + " completed"
	if prURL != "" {
		body += ": " + prURL
	}
	n.send("aio task completed", body)
}

func (n *OSNotify) send(title, body string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := `display notification "` + escapeAppleScript(body) + `" with title "` + escapeAppleScript(title) + `"`
		cmd = exec.Command("osascript", "-e", script)
	case "linux":
		cmd = exec.Command("notify-send", title, body)
	default:
		n.logger.Printf("notify: %s: %s", title, body)
		return
	}
	if err := cmd.Run(); err != nil {
		n.logger.Printf("notify: %s: %s (delivery failed: %v)", title, body, err)
	}
}

func escapeAppleScript(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
