// Package settings manages the per-repo shared settings store at
// <repo>/.treekeep/settings.yaml. Operations cache the resolved
// protected-branch set here so later invocations skip re-detection.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	yaml "go.yaml.in/yaml/v3"
)

// GitSettings holds cached git-related settings.
type GitSettings struct {
	ProtectedBranches []string `yaml:"protected_branches,omitempty"`
}

// Settings is the shared settings document.
type Settings struct {
	Git GitSettings `yaml:"git"`
}

// StateDir returns the treekeep state directory for a repo.
func StateDir(repoRoot string) string {
	return filepath.Join(repoRoot, ".treekeep")
}

// Path returns the settings file path for a repo.
func Path(repoRoot string) string {
	return filepath.Join(StateDir(repoRoot), "settings.yaml")
}

// Load reads the settings for a repo.
// Returns zero settings if the file doesn't exist.
func Load(repoRoot string) (Settings, error) {
	data, err := os.ReadFile(Path(repoRoot))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}

// Save writes the settings atomically (write-temp, rename).
func Save(repoRoot string, s Settings) error {
	if err := os.MkdirAll(StateDir(repoRoot), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	path := Path(repoRoot)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // Clean up temp file on failure
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
