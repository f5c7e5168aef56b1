// Command aio is the orchestration kernel's CLI: it allocates a session
// (Planner in the current terminal, Orchestrator in an adjacent tmux pane),
// and offers status/stop/clean over the same on-disk store.
package main

func main() {
	Execute()
}
