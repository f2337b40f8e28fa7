// Package worktree computes the mandated on-disk layout for worktrees.
package worktree

import (
	"path/filepath"
	"strings"
)

// DefaultBase returns the default worktree base directory for a repo:
// a "<repo>-worktrees" sibling of the repository.
func DefaultBase(repoRoot string) string {
	return filepath.Join(filepath.Dir(repoRoot), filepath.Base(repoRoot)+"-worktrees")
}

// SafeBranch sanitizes a branch name for use as a folder name (/ -> -).
func SafeBranch(branch string) string {
	return strings.ReplaceAll(branch, "/", "-")
}

// Resolve computes the worktree path for a branch: <base>/<safe-branch>.
// An empty base falls back to DefaultBase.
func Resolve(repoRoot, base, branch string) string {
	if base == "" {
		base = DefaultBase(repoRoot)
	}
	return filepath.Join(base, SafeBranch(branch))
}
