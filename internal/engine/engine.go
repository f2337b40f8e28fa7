// Package engine implements the worktree lifecycle operations: scan,
// create, cleanup, and abort. Each operation is a synchronous, bounded
// sequence of git and filesystem calls (fetch, classify, act, persist);
// the only persistent state is the tracking ledger and the cached
// protected-branch settings.
package engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sahilm/fuzzy"

	"github.com/treekeep/treekeep/internal/config"
	"github.com/treekeep/treekeep/internal/git"
	"github.com/treekeep/treekeep/internal/log"
	"github.com/treekeep/treekeep/internal/protect"
	"github.com/treekeep/treekeep/internal/protocol"
	"github.com/treekeep/treekeep/internal/settings"
	"github.com/treekeep/treekeep/internal/worktree"
)

// Common holds the request fields shared by every operation.
type Common struct {
	RepoRoot          string                `json:"repo_root,omitempty"`
	WorktreeBase      string                `json:"worktree_base,omitempty"`
	TrackingEnabled   *bool                 `json:"tracking_enabled,omitempty"`
	ProtectedBranches []string              `json:"protected_branches,omitempty"`
	GitFlow           *config.GitFlowConfig `json:"git_flow,omitempty"`
}

// Env is the resolved per-invocation environment: an explicit snapshot of
// configuration and protected-branch state, never a process-wide global.
type Env struct {
	RepoRoot     string
	WorktreeBase string
	Tracking     bool
	Protected    protect.Set
	// CacheUpdated is true when this invocation wrote a newly detected
	// protected set back to the shared settings store.
	CacheUpdated bool
}

// Prepare validates the environment and resolves the protected-branch
// set for one invocation. Request fields override config; config
// overrides detection. A newly detected set is cached to the shared
// settings store, an idempotent metadata write that even read-only
// operations may perform.
func Prepare(ctx context.Context, cfg config.Config, c Common) (*Env, error) {
	if err := git.CheckGit(); err != nil {
		return nil, protocol.NewError(protocol.CodeGitError, false, "%v", err)
	}

	start := c.RepoRoot
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, protocol.NewError(protocol.CodeGitError, false, "failed to get working directory: %v", err)
		}
		start = wd
	}

	repoRoot, err := git.RepoRoot(ctx, start)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeGitNotRepo, false, "%s is not a git repository", start).
			WithSuggestion("run inside a repository or pass repo_root in the request")
	}

	base := c.WorktreeBase
	if base == "" {
		base = cfg.WorktreeBase
	}
	if base != "" && !filepath.IsAbs(base) {
		abs, err := filepath.Abs(base)
		if err == nil {
			base = abs
		}
	}

	tracking := cfg.TrackingEnabled()
	if c.TrackingEnabled != nil {
		tracking = *c.TrackingEnabled
	}

	shared, err := settings.Load(repoRoot)
	if err != nil {
		// An unreadable settings cache never blocks an operation;
		// detection runs again instead.
		log.FromContext(ctx).Debug("settings cache unreadable", "err", err)
		shared = settings.Settings{}
	}

	explicit := c.ProtectedBranches
	if len(explicit) == 0 {
		explicit = cfg.ProtectedBranches
	}
	gitFlow := cfg.GitFlow
	if c.GitFlow != nil {
		gitFlow = *c.GitFlow
	}

	env := &Env{
		RepoRoot:     repoRoot,
		WorktreeBase: base,
		Tracking:     tracking,
	}
	env.Protected = protect.Resolve(ctx, repoRoot, protect.Inputs{
		Explicit: explicit,
		GitFlow:  gitFlow,
		Cached:   shared.Git.ProtectedBranches,
	})

	if env.Protected.NewlyDetected && env.Protected.Resolved() {
		shared.Git.ProtectedBranches = env.Protected.Branches
		if err := settings.Save(repoRoot, shared); err != nil {
			log.FromContext(ctx).Debug("failed to cache protected branches", "err", err)
		} else {
			env.CacheUpdated = true
		}
	}

	return env, nil
}

// WorktreePath returns the mandated path for a branch's worktree.
func (e *Env) WorktreePath(branch string) string {
	return worktree.Resolve(e.RepoRoot, e.WorktreeBase, branch)
}

// liveWorktrees lists the repo's linked worktrees, excluding the main
// working tree and bare entries.
func liveWorktrees(ctx context.Context, env *Env) ([]git.WorktreeInfo, error) {
	all, err := git.ListWorktrees(ctx, env.RepoRoot)
	if err != nil {
		return nil, err
	}
	var out []git.WorktreeInfo
	for _, wt := range all {
		if wt.Bare || wt.Path == env.RepoRoot {
			continue
		}
		out = append(out, wt)
	}
	return out, nil
}

// suggestBranch fuzzy-matches input against known branch names for
// "did you mean" suggestions. Returns empty string on no decent match.
func suggestBranch(branches []string, input string) string {
	matches := fuzzy.Find(input, branches)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}

// notFoundError builds a WORKTREE.NOT_FOUND error with a fuzzy branch
// suggestion when one exists.
func notFoundError(ctx context.Context, env *Env, branch string) *protocol.Error {
	err := protocol.NewError(protocol.CodeWorktreeNotFound, true, "no worktree found for branch %q", branch)
	branches, lerr := git.ListLocalBranches(ctx, env.RepoRoot)
	if lerr == nil {
		if s := suggestBranch(branches, branch); s != "" && s != branch {
			return err.WithSuggestion("did you mean %q? otherwise run scan to list worktrees", s)
		}
	}
	return err.WithSuggestion("run scan to list known worktrees")
}
