package git

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// RepoName returns the repository folder name on disk.
func RepoName(repoPath string) string {
	return filepath.Base(repoPath)
}

// HasOrigin reports whether the repository has an origin remote.
func HasOrigin(ctx context.Context, repoPath string) bool {
	return runGit(ctx, repoPath, "remote", "get-url", "origin") == nil
}

// FetchAllPrune fetches all remotes and prunes deleted remote branches.
// Used before create/cleanup decisions so branch existence checks are fresh.
func FetchAllPrune(ctx context.Context, repoPath string) error {
	if err := runGit(ctx, repoPath, "fetch", "--all", "--prune", "--quiet"); err != nil {
		return fmt.Errorf("failed to fetch: %v", err)
	}
	return nil
}

// StatusShort returns the output of git status --short for a worktree.
func StatusShort(ctx context.Context, path string) (string, error) {
	output, err := outputGit(ctx, path, "status", "--short")
	if err != nil {
		return "", fmt.Errorf("failed to get status: %v", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// IsDirty returns true if the worktree has uncommitted changes or
// untracked files, detected via git status --short.
func IsDirty(ctx context.Context, path string) (bool, error) {
	status, err := StatusShort(ctx, path)
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// DefaultBranch returns the default branch name for the repo
// (e.g., "main" or "master"). Returns empty string when undetectable.
func DefaultBranch(ctx context.Context, repoPath string) string {
	// Try remote HEAD first
	output, err := outputGit(ctx, repoPath, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		ref := strings.TrimSpace(string(output))
		if parts := strings.Split(ref, "/"); len(parts) > 0 {
			return parts[len(parts)-1]
		}
	}

	// Fallback: local main, then master
	if LocalBranchExists(ctx, repoPath, "main") {
		return "main"
	}
	if LocalBranchExists(ctx, repoPath, "master") {
		return "master"
	}
	return ""
}

// GitFlowBranches reads the git-flow branch layout from the repo's git
// config (written by git flow init). Returns ok=false when the repo is
// not git-flow initialized.
func GitFlowBranches(ctx context.Context, repoPath string) (main, develop string, ok bool) {
	mainOut, err := outputGit(ctx, repoPath, "config", "--get", "gitflow.branch.master")
	if err != nil {
		return "", "", false
	}
	main = strings.TrimSpace(string(mainOut))
	if main == "" {
		return "", "", false
	}

	developOut, err := outputGit(ctx, repoPath, "config", "--get", "gitflow.branch.develop")
	if err == nil {
		develop = strings.TrimSpace(string(developOut))
	}
	return main, develop, true
}
