package git

import (
	"context"
	"fmt"
	"strings"
)

// LocalBranchExists checks if a local branch exists.
func LocalBranchExists(ctx context.Context, repoPath, branch string) bool {
	return runGit(ctx, repoPath, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch) == nil
}

// RemoteBranchExists checks if a branch exists on origin.
// Callers should fetch first for an up-to-date answer.
func RemoteBranchExists(ctx context.Context, repoPath, branch string) bool {
	return runGit(ctx, repoPath, "rev-parse", "--verify", "--quiet", "refs/remotes/origin/"+branch) == nil
}

// RefExists checks if an arbitrary ref (branch, tag, commit) resolves.
func RefExists(ctx context.Context, repoPath, ref string) bool {
	return runGit(ctx, repoPath, "rev-parse", "--verify", "--quiet", ref+"^{commit}") == nil
}

// ListLocalBranches returns all local branch names.
func ListLocalBranches(ctx context.Context, repoPath string) ([]string, error) {
	output, err := outputGit(ctx, repoPath, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %v", err)
	}

	var branches []string
	for _, line := range strings.Split(string(output), "\n") {
		if b := strings.TrimSpace(line); b != "" {
			branches = append(branches, b)
		}
	}
	return branches, nil
}

// MergedBranches returns the set of local branches merged into base.
// Uses a single call: git branch --merged <base>.
func MergedBranches(ctx context.Context, repoPath, base string) (map[string]bool, error) {
	output, err := outputGit(ctx, repoPath, "branch", "--merged", base)
	if err != nil {
		return nil, fmt.Errorf("failed to check merge status against %s: %v", base, err)
	}

	merged := make(map[string]bool)
	for _, line := range strings.Split(string(output), "\n") {
		trimmed := strings.TrimSpace(line)
		// Handle "branch", "* branch" (current), and "+ branch" (in worktree) formats
		trimmed = strings.TrimPrefix(trimmed, "* ")
		trimmed = strings.TrimPrefix(trimmed, "+ ")
		if trimmed != "" {
			merged[trimmed] = true
		}
	}
	return merged, nil
}

// MergeBase returns the merge base commit of base and branch.
func MergeBase(ctx context.Context, repoPath, base, branch string) (string, error) {
	output, err := outputGit(ctx, repoPath, "merge-base", base, branch)
	if err != nil {
		return "", fmt.Errorf("failed to compute merge-base of %s and %s: %v", base, branch, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// UniqueCommitCount returns the number of commits on branch that are not
// reachable from base (git rev-list --count base..branch).
func UniqueCommitCount(ctx context.Context, repoPath, base, branch string) (int, error) {
	output, err := outputGit(ctx, repoPath, "rev-list", "--count", fmt.Sprintf("%s..%s", base, branch))
	if err != nil {
		return 0, fmt.Errorf("failed to count commits: %v", err)
	}

	var count int
	_, err = fmt.Sscanf(strings.TrimSpace(string(output)), "%d", &count)
	return count, err
}

// DeleteLocalBranch deletes a local branch (-d, or -D when force).
func DeleteLocalBranch(ctx context.Context, repoPath, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	if err := runGit(ctx, repoPath, "branch", flag, branch); err != nil {
		return fmt.Errorf("failed to delete branch %s: %v", branch, err)
	}
	return nil
}

// DeleteRemoteBranch deletes a branch on origin.
// A branch that is already gone on the remote is not an error; the
// returned bool reports whether the remote ref actually existed.
func DeleteRemoteBranch(ctx context.Context, repoPath, branch string) (bool, error) {
	err := runGit(ctx, repoPath, "push", "origin", "--delete", branch)
	if err == nil {
		return true, nil
	}
	if isRemoteRefMissing(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to delete remote branch %s: %v", branch, err)
}

// isRemoteRefMissing matches git's "already gone" push failures.
func isRemoteRefMissing(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "remote ref does not exist") ||
		strings.Contains(msg, "unable to delete") && strings.Contains(msg, "not found")
}
