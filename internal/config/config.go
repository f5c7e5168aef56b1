// Package config loads the orchestrator's runtime configuration, layered
// flags > env > project file > home file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// GlobalConfigDir returns the per-user config directory (~/.config/aio).
func GlobalConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "aio")
}

// GlobalConfigFile returns the per-user config file path.
func GlobalConfigFile() string {
	return filepath.Join(GlobalConfigDir(), "config.yaml")
}

// SafetyRule is a single extra SafetyGuard pattern loaded from config, on top
// of the built-in deny list.
type SafetyRule struct {
	Pattern string `yaml:"pattern"`
	Reason  string `yaml:"reason"`
}

// fileConfig is the YAML shape read from a project or home config file. Every
// field is optional; zero values mean "not set at this layer".
type fileConfig struct {
	StorePath        string       `yaml:"store_path"`
	RepoRoot         string       `yaml:"repo_root"`
	HeartbeatTimeout int          `yaml:"heartbeat_timeout_seconds"`
	ReaperInterval   int          `yaml:"reaper_interval_seconds"`
	NotifierPoll     int          `yaml:"notifier_poll_interval_seconds"`
	EventRetryCeil   int          `yaml:"event_retry_ceiling"`
	WorkerCmd        string       `yaml:"worker_cmd"`
	ReviewerCmd      string       `yaml:"reviewer_cmd"`
	SafetyRules      []SafetyRule `yaml:"safety_rules"`
}

// Config is the fully-resolved configuration the orchestrator process runs
// with, after merging flags, environment, project file, home file, and
// defaults (in descending precedence).
type Config struct {
	StorePath        string
	RepoRoot         string
	HeartbeatTimeout time.Duration
	ReaperInterval   time.Duration
	NotifierPoll     time.Duration
	EventRetryCeil   int
	WorkerCmd        string
	ReviewerCmd      string
	SafetyRules      []SafetyRule
}

// defaults: 30s heartbeat timeout, a few-second reaper cadence, ~1s
// notifier poll, and a 10-attempt event retry ceiling.
func defaults() Config {
	return Config{
		StorePath:        filepath.Join(".aio", "store.db"),
		RepoRoot:         ".",
		HeartbeatTimeout: 30 * time.Second,
		ReaperInterval:   5 * time.Second,
		NotifierPoll:     1 * time.Second,
		EventRetryCeil:   10,
		WorkerCmd:        "aio-worker-agent",
		ReviewerCmd:      "aio-reviewer-agent",
	}
}

// Overrides holds the command-line flag values. Zero values (empty string,
// zero duration) mean "flag not set"; they never override a lower layer.
type Overrides struct {
	StorePath        string
	RepoRoot         string
	HeartbeatTimeout time.Duration
}

// Load resolves the layered configuration: flags > env > project file
// (<repoRoot>/.aio/config.yaml) > home file (~/.config/aio/config.yaml) >
// defaults. Project/home files that don't exist are skipped, not an error.
func Load(overrides Overrides) (Config, error) {
	cfg := defaults()

	if home := GlobalConfigFile(); fileExists(home) {
		fc, err := readFileConfig(home)
		if err != nil {
			return Config{}, fmt.Errorf("config: home file: %w", err)
		}
		applyFileConfig(&cfg, fc)
	}

	projectRoot := overrides.RepoRoot
	if projectRoot == "" {
		projectRoot = os.Getenv("AIO_REPO_ROOT")
	}
	if projectRoot == "" {
		projectRoot = "."
	}
	if projectFile := filepath.Join(projectRoot, ".aio", "config.yaml"); fileExists(projectFile) {
		fc, err := readFileConfig(projectFile)
		if err != nil {
			return Config{}, fmt.Errorf("config: project file: %w", err)
		}
		applyFileConfig(&cfg, fc)
	}

	applyEnv(&cfg)
	applyOverrides(&cfg, overrides)

	return cfg, nil
}

func readFileConfig(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.StorePath != "" {
		cfg.StorePath = fc.StorePath
	}
	if fc.RepoRoot != "" {
		cfg.RepoRoot = fc.RepoRoot
	}
	if fc.HeartbeatTimeout > 0 {
		cfg.HeartbeatTimeout = time.Duration(fc.HeartbeatTimeout) * time.Second
	}
	if fc.ReaperInterval > 0 {
		cfg.ReaperInterval = time.Duration(fc.ReaperInterval) * time.Second
	}
	if fc.NotifierPoll > 0 {
		cfg.NotifierPoll = time.Duration(fc.NotifierPoll) * time.Second
	}
	if fc.EventRetryCeil > 0 {
		cfg.EventRetryCeil = fc.EventRetryCeil
	}
	if fc.WorkerCmd != "" {
		cfg.WorkerCmd = fc.WorkerCmd
	}
	if fc.ReviewerCmd != "" {
		cfg.ReviewerCmd = fc.ReviewerCmd
	}
	if len(fc.SafetyRules) > 0 {
		cfg.SafetyRules = append(cfg.SafetyRules, fc.SafetyRules...)
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AIO_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("AIO_REPO_ROOT"); v != "" {
		cfg.RepoRoot = v
	}
	if v := os.Getenv("AIO_WORKER_CMD"); v != "" {
		cfg.WorkerCmd = v
	}
	if v := os.Getenv("AIO_REVIEWER_CMD"); v != "" {
		cfg.ReviewerCmd = v
	}
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.StorePath != "" {
		cfg.StorePath = o.StorePath
	}
	if o.RepoRoot != "" {
		cfg.RepoRoot = o.RepoRoot
	}
	if o.HeartbeatTimeout > 0 {
		cfg.HeartbeatTimeout = o.HeartbeatTimeout
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
