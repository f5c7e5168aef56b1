package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aio-dev/aio/internal/config"
	"github.com/aio-dev/aio/internal/safety"
)

// resolveConfig loads the layered configuration with the root command's
// persistent flags as the highest-precedence overrides.
func resolveConfig() (config.Config, error) {
	return config.Load(config.Overrides{
		StorePath: storePath,
		RepoRoot:  repoRoot,
	})
}

// newLogger builds the process logger: always to the log file under
// <repoRoot>/.aio/aio.log, plus stderr when --verbose is set.
func newLogger(cfg config.Config) *log.Logger {
	logDir := filepath.Join(cfg.RepoRoot, ".aio")
	logPath := filepath.Join(logDir, "aio.log")

	var w *os.File
	if err := os.MkdirAll(logDir, 0o755); err == nil {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		}
	}

	if w == nil {
		return log.New(os.Stderr, "[aio] ", log.LstdFlags)
	}
	if verbose {
		return log.New(&teeWriter{a: w, b: os.Stderr}, "[aio] ", log.LstdFlags)
	}
	return log.New(w, "[aio] ", log.LstdFlags)
}

// teeWriter duplicates every write to both a and b, used to send log lines
// to the on-disk log and stderr simultaneously under --verbose.
type teeWriter struct {
	a, b *os.File
}

func (t *teeWriter) Write(p []byte) (int, error) {
	n, err := t.a.Write(p)
	_, _ = t.b.Write(p)
	return n, err
}

// buildGuard assembles the SafetyGuard from the built-in deny list plus any
// project-configured extra rules.
func buildGuard(cfg config.Config) *safety.Guard {
	var extra []safety.Rule
	for _, r := range cfg.SafetyRules {
		rule, err := safety.CompileRule(r.Pattern, r.Reason)
		if err != nil {
			continue
		}
		extra = append(extra, rule)
	}
	return safety.New(extra)
}

// absStorePath resolves cfg.StorePath relative to cfg.RepoRoot when it
// isn't already absolute, so ".aio/store.db" means "<repo>/.aio/store.db"
// regardless of the CLI's own working directory.
func absStorePath(cfg config.Config) string {
	if filepath.IsAbs(cfg.StorePath) {
		return cfg.StorePath
	}
	return filepath.Join(cfg.RepoRoot, cfg.StorePath)
}

// generatedDir is where per-role tool configuration files are written.
func generatedDir(cfg config.Config) string {
	return filepath.Join(cfg.RepoRoot, ".aio", ".generated")
}

// sessionPaneHandle names the tmux session hosting the Orchestrator process
// for a given session id.
func sessionPaneHandle(sessionID string) string {
	return fmt.Sprintf("aio-session-%s-orchestrator", sessionID)
}

const sessionPrefix = "aio-session-"
