// Package safety centralizes the deny-list that execute_command consults
// before handing a shell command to os/exec. It addresses the same threat
// category as destructive, unreviewable shell operations run by an
// autonomous agent: recursive deletion of wide filesystem scopes, raw-device
// writes, history-rewriting git operations, and blind curl-pipe-to-shell.
package safety

import (
	"fmt"
	"regexp"
)

// Rule pairs a compiled pattern with the human-readable reason a matching
// command is refused, surfaced back to the calling agent so it can adjust.
type Rule struct {
	Pattern *regexp.Regexp
	Reason  string
}

// defaultRules is the built-in deny-list. Case-insensitive; matched against
// the full command string as the agent supplied it to execute_command.
var defaultRules = []Rule{
	{regexp.MustCompile(`(?i)rm\s+-[a-z]*(r[a-z]*f|f[a-z]*r)[a-z]*\s+(/|~|\$HOME|\*)(\s|;|$)`), "recursive force-delete of root, home, or a wildcard scope"},
	{regexp.MustCompile(`(?i)rm\s+-[a-z]*(r[a-z]*f|f[a-z]*r)[a-z]*\s+\.\.`), "recursive force-delete that escapes the current directory"},
	{regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`), "filesystem creation on a block device"},
	{regexp.MustCompile(`(?i)\bdd\s.*\bof=/dev/`), "raw write to a device node"},
	{regexp.MustCompile(`(?i)>\s*/dev/(sd|nvme|hd)`), "raw write to a device node"},
	{regexp.MustCompile(`(?i)git\s+push\s+.*--force(?:\b|=)`), "force push can destroy remote history"},
	{regexp.MustCompile(`(?i)git\s+push\s+.*-f\b`), "force push can destroy remote history"},
	{regexp.MustCompile(`(?i)git\s+reset\s+--hard\b`), "hard reset discards uncommitted work"},
	{regexp.MustCompile(`(?i)git\s+clean\s+-[a-z]*d[a-z]*f|git\s+clean\s+-[a-z]*f[a-z]*d`), "aggressive clean removes untracked files irreversibly"},
	{regexp.MustCompile(`(?i)\bcat\s+.*\.env\b`), "reads a dotenv file that may hold secrets"},
	{regexp.MustCompile(`(?i)>\s*\.env\b`), "writes a dotenv file that may hold secrets"},
	{regexp.MustCompile(`(?i)curl[^|]*\|\s*(ba)?sh\b`), "pipes a remote download straight into a shell"},
	{regexp.MustCompile(`(?i)wget[^|]*\|\s*(ba)?sh\b`), "pipes a remote download straight into a shell"},
	{regexp.MustCompile(`(?i)\bproduction\b`), "command text references production; route through a reviewed deploy path instead"},
}

// Guard evaluates shell commands against the deny-list before execution.
type Guard struct {
	rules []Rule
}

// New builds a Guard from the default rules plus any caller-supplied extra
// patterns (e.g. loaded from the project's YAML config), letting operators
// extend the deny-list without a code change.
func New(extra []Rule) *Guard {
	rules := make([]Rule, 0, len(defaultRules)+len(extra))
	rules = append(rules, defaultRules...)
	rules = append(rules, extra...)
	return &Guard{rules: rules}
}

// Check returns a non-nil error describing the first matching rule, or nil
// if cmd is clear to run.
func (g *Guard) Check(cmd string) error {
	for _, r := range g.rules {
		if r.Pattern.MatchString(cmd) {
			return fmt.Errorf("safety: blocked: %s", r.Reason)
		}
	}
	return nil
}

// CompileRule compiles a raw pattern string into a Rule, for use when
// loading extra patterns from config. The pattern is matched
// case-insensitively regardless of whether the caller included (?i).
func CompileRule(pattern, reason string) (Rule, error) {
	re, err := regexp.Compile(`(?i)` + pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("safety: compile rule %q: %w", pattern, err)
	}
	return Rule{Pattern: re, Reason: reason}, nil
}
