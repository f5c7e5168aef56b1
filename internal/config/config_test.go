package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	t.Setenv("AIO_STORE_PATH", "")
	t.Setenv("AIO_REPO_ROOT", "")
	cfg, err := Load(Overrides{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HeartbeatTimeout != 30*time.Second {
		t.Errorf("HeartbeatTimeout = %v, want 30s", cfg.HeartbeatTimeout)
	}
	if cfg.EventRetryCeil != 10 {
		t.Errorf("EventRetryCeil = %d, want 10", cfg.EventRetryCeil)
	}
}

func TestLoad_projectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".aio"), 0o755); err != nil {
		t.Fatal(err)
	}
	yamlContent := "heartbeat_timeout_seconds: 45\nstore_path: custom.db\n"
	if err := os.WriteFile(filepath.Join(dir, ".aio", "config.yaml"), []byte(yamlContent), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(Overrides{RepoRoot: dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HeartbeatTimeout != 45*time.Second {
		t.Errorf("HeartbeatTimeout = %v, want 45s", cfg.HeartbeatTimeout)
	}
	if cfg.StorePath != "custom.db" {
		t.Errorf("StorePath = %q, want custom.db", cfg.StorePath)
	}
}

func TestLoad_envOverridesProjectFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".aio"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".aio", "config.yaml"), []byte("store_path: from-file.db\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AIO_STORE_PATH", "from-env.db")

	cfg, err := Load(Overrides{RepoRoot: dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorePath != "from-env.db" {
		t.Errorf("StorePath = %q, want from-env.db", cfg.StorePath)
	}
}

func TestLoad_flagOverridesEverything(t *testing.T) {
	t.Setenv("AIO_STORE_PATH", "from-env.db")

	cfg, err := Load(Overrides{StorePath: "from-flag.db"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorePath != "from-flag.db" {
		t.Errorf("StorePath = %q, want from-flag.db", cfg.StorePath)
	}
}

func TestLoad_workerAndReviewerCmd(t *testing.T) {
	cfg, err := Load(Overrides{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkerCmd != "aio-worker-agent" {
		t.Errorf("WorkerCmd = %q, want aio-worker-agent", cfg.WorkerCmd)
	}
	if cfg.ReviewerCmd != "aio-reviewer-agent" {
		t.Errorf("ReviewerCmd = %q, want aio-reviewer-agent", cfg.ReviewerCmd)
	}

	t.Setenv("AIO_WORKER_CMD", "custom-worker")
	t.Setenv("AIO_REVIEWER_CMD", "custom-reviewer")
	cfg, err = Load(Overrides{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkerCmd != "custom-worker" {
		t.Errorf("WorkerCmd = %q, want custom-worker", cfg.WorkerCmd)
	}
	if cfg.ReviewerCmd != "custom-reviewer" {
		t.Errorf("ReviewerCmd = %q, want custom-reviewer", cfg.ReviewerCmd)
	}
}

func TestLoad_missingFilesAreNotErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(Overrides{RepoRoot: dir}); err != nil {
		t.Fatalf("Load with no config files present: %v", err)
	}
}
