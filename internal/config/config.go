package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// GitFlowConfig holds git-flow related configuration.
// When enabled, the protected set is {main_branch, develop_branch};
// when disabled, only {main_branch}.
type GitFlowConfig struct {
	Enabled       bool   `toml:"enabled"`
	MainBranch    string `toml:"main_branch"`
	DevelopBranch string `toml:"develop_branch"`
}

// Config holds the treekeep configuration.
type Config struct {
	WorktreeBase      string        `toml:"worktree_base"`
	Tracking          *bool         `toml:"tracking"` // nil means enabled
	ProtectedBranches []string      `toml:"protected_branches"`
	GitFlow           GitFlowConfig `toml:"git_flow"`
}

// TrackingEnabled reports whether the tracking ledger is in use.
// Tracking defaults to enabled when unset.
func (c *Config) TrackingEnabled() bool {
	return c.Tracking == nil || *c.Tracking
}

// Default returns the default configuration.
func Default() Config {
	return Config{}
}

// ValidatePath checks that the path is absolute or starts with ~.
// Returns error if path is relative (like "." or "..").
func ValidatePath(path, fieldName string) error {
	if path == "" {
		return nil // Empty is allowed (means not configured)
	}
	if path[0] == '~' {
		return nil
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%s must be absolute or start with ~, got: %q", fieldName, path)
	}
	return nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand ~: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	if path == "~" {
		return os.UserHomeDir()
	}
	return path, nil
}

// configPath returns the path to the config file.
func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "treekeep", "config.toml"), nil
}

// Load reads config from ~/.config/treekeep/config.toml.
// Returns Default() if the file doesn't exist (no error).
// Returns an error only if the file exists but is invalid.
func Load() (Config, error) {
	path, err := configPath()
	if err != nil {
		return Default(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from an explicit path. Same semantics as Load.
func LoadFrom(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("failed to parse config file: %w", err)
	}

	// Validate worktree_base (must be absolute or start with ~)
	if err := ValidatePath(cfg.WorktreeBase, "worktree_base"); err != nil {
		return Default(), err
	}

	// Expand ~ (shell doesn't expand in config files)
	if cfg.WorktreeBase != "" {
		expanded, err := expandPath(cfg.WorktreeBase)
		if err != nil {
			return Default(), fmt.Errorf("expand worktree_base: %w", err)
		}
		cfg.WorktreeBase = expanded
	}

	// Reject ambiguous git-flow config instead of defaulting silently:
	// enabling git-flow without branch names leaves the protected set
	// underspecified.
	if cfg.GitFlow.Enabled && cfg.GitFlow.MainBranch == "" {
		return Default(), fmt.Errorf("git_flow.enabled requires git_flow.main_branch to be set")
	}

	for _, b := range cfg.ProtectedBranches {
		if b == "" {
			return Default(), fmt.Errorf("protected_branches must not contain empty names")
		}
	}

	return cfg, nil
}

const defaultConfig = `# treekeep configuration

# Base directory for new worktrees.
# Must be an absolute path or start with ~ (no relative paths like "." or "..")
# If not set, worktrees are created in "<repo>-worktrees" next to the repo.
# worktree_base = "~/Git/worktrees"

# Tracking ledger. When enabled (default), treekeep keeps a per-repo record
# of worktrees in <repo>/.treekeep/ledger.jsonl independent of git's own
# worktree list. Disable to fall back to live git state only.
# tracking = true

# Branches that must never be deleted by cleanup or abort.
# If set, this list fully overrides git-flow auto-detection.
# protected_branches = ["main", "develop"]

# Git-flow layout. When enabled, the protected set is
# {main_branch, develop_branch}; when disabled, only {main_branch}.
# If neither this section nor protected_branches is configured, treekeep
# auto-detects git-flow from the repo's git config and falls back to the
# default branch. Branch-deleting operations refuse to run when no source
# yields a protected set.
# [git_flow]
# enabled = true
# main_branch = "main"
# develop_branch = "develop"
`

// Init creates a default config file at ~/.config/treekeep/config.toml.
// If force is true, overwrites an existing file.
// Returns the path to the created file.
func Init(force bool) (string, error) {
	path, err := configPath()
	if err != nil {
		return "", err
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", errors.New("config file already exists: " + path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	if err := os.WriteFile(path, []byte(defaultConfig), 0644); err != nil {
		return "", err
	}

	return path, nil
}
