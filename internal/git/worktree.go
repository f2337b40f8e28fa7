package git

import (
	"context"
	"fmt"
	"strings"
)

// WorktreeInfo contains one entry from git worktree list --porcelain.
type WorktreeInfo struct {
	Path   string
	Branch string // "(detached)" for detached HEAD
	Head   string // full commit hash, caller can truncate
	Bare   bool
}

// ListWorktrees returns all worktrees for a repository using
// git worktree list --porcelain. The main working tree is included.
func ListWorktrees(ctx context.Context, repoPath string) ([]WorktreeInfo, error) {
	output, err := outputGit(ctx, repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %v", err)
	}
	return parseWorktreeList(string(output)), nil
}

// parseWorktreeList parses porcelain output: each worktree block has
// "worktree <path>", "HEAD <hash>", and "branch refs/heads/<name>" (or
// "detached"), separated by blank lines.
func parseWorktreeList(output string) []WorktreeInfo {
	var worktrees []WorktreeInfo
	var current WorktreeInfo

	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			// Start of new worktree entry
			if current.Path != "" {
				worktrees = append(worktrees, current)
			}
			current = WorktreeInfo{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch refs/heads/"):
			current.Branch = strings.TrimPrefix(line, "branch refs/heads/")
		case line == "detached":
			current.Branch = "(detached)"
		case line == "bare":
			current.Bare = true
		}
	}

	// Don't forget the last entry
	if current.Path != "" {
		worktrees = append(worktrees, current)
	}

	return worktrees
}

// BranchWorktree returns the worktree path if branch is checked out
// anywhere in the repository, empty string if not.
func BranchWorktree(ctx context.Context, repoPath, branch string) (string, error) {
	worktrees, err := ListWorktrees(ctx, repoPath)
	if err != nil {
		return "", err
	}
	for _, wt := range worktrees {
		if wt.Branch == branch {
			return wt.Path, nil
		}
	}
	return "", nil
}

// AddWorktree checks out an existing branch into a new worktree at path.
func AddWorktree(ctx context.Context, repoPath, path, branch string) error {
	return runGit(ctx, repoPath, "worktree", "add", path, branch)
}

// AddWorktreeNewBranch creates branch from base and checks it out into a
// new worktree at path.
func AddWorktreeNewBranch(ctx context.Context, repoPath, path, branch, base string) error {
	return runGit(ctx, repoPath, "worktree", "add", "-b", branch, path, base)
}

// RemoveWorktree removes a git worktree.
func RemoveWorktree(ctx context.Context, repoPath, path string, force bool) error {
	args := []string{"worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	return runGit(ctx, repoPath, args...)
}

// PruneWorktrees prunes stale worktree references.
func PruneWorktrees(ctx context.Context, repoPath string) error {
	return runGit(ctx, repoPath, "worktree", "prune")
}
