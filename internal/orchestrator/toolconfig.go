package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ToolServerConfig describes one stdio-spawned tool server entry in a
// per-role tool configuration file.
type ToolServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

// RoleToolConfig is the JSON document written to
// .aio/.generated/<role>.json: a stable, versioned contract consumed by the
// external agent host. Readers ignore unknown fields.
type RoleToolConfig struct {
	Version int                         `json:"version"`
	Role    string                      `json:"role"`
	Servers map[string]ToolServerConfig `json:"servers"`
}

const toolConfigVersion = 1

// GenerateToolConfigs (re)writes the per-role tool configuration files under
// dir, one stdio tool server per role pointing at the same binary's
// `serve-tools` entrypoint with the role baked into its arguments. Called
// once at startup, so stale configs from a previous binary are replaced.
func GenerateToolConfigs(dir, binPath string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("orchestrator: create generated dir: %w", err)
	}

	roles := []string{"planner", "worker", "reviewer"}
	for _, role := range roles {
		cfg := RoleToolConfig{
			Version: toolConfigVersion,
			Role:    role,
			Servers: map[string]ToolServerConfig{
				"aio": {
					Command: binPath,
					Args:    []string{"serve-tools", "--role", role},
				},
			},
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("orchestrator: marshal %s tool config: %w", role, err)
		}
		path := filepath.Join(dir, role+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("orchestrator: write %s: %w", path, err)
		}
	}
	return nil
}
