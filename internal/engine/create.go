package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/treekeep/treekeep/internal/git"
	"github.com/treekeep/treekeep/internal/ledger"
	"github.com/treekeep/treekeep/internal/log"
	"github.com/treekeep/treekeep/internal/protocol"
)

// CreateRequest asks for a new worktree for a branch.
type CreateRequest struct {
	Common
	Branch  string `json:"branch"`
	Base    string `json:"base,omitempty"`
	Purpose string `json:"purpose"`
	Owner   string `json:"owner"`
}

// CreateResult reports a successful create.
type CreateResult struct {
	Branch        string         `json:"branch"`
	Base          string         `json:"base,omitempty"`
	Path          string         `json:"path"`
	BranchCreated bool           `json:"branch_created"`
	Tracked       bool           `json:"tracked"`
	Record        *ledger.Record `json:"record,omitempty"`
	Transcript    []Step         `json:"transcript"`
}

// Create validates, fetches, adds the worktree, verifies it came up
// clean, and records it in the ledger. Validation happens before any
// git mutation so a refused request leaves the repo untouched.
func (e *Env) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.Branch == "" {
		return nil, protocol.NewError(protocol.CodeGitError, false, "branch is required")
	}
	if req.Purpose == "" || req.Owner == "" {
		return nil, protocol.NewError(protocol.CodeGitError, false, "purpose and owner are required")
	}

	path := e.WorktreePath(req.Branch)
	if _, err := os.Stat(path); err == nil {
		return nil, protocol.NewError(protocol.CodeWorktreeExists, true, "path %s already exists", path).
			WithSuggestion("remove the directory or pick another worktree_base")
	}

	inUse, err := git.BranchWorktree(ctx, e.RepoRoot, req.Branch)
	if err != nil {
		return nil, err
	}
	if inUse != "" {
		return nil, protocol.NewError(protocol.CodeWorktreeBranchInUse, true, "branch %q is already checked out at %s", req.Branch, inUse).
			WithSuggestion("use the existing worktree or abort it first")
	}

	var tr Transcript

	// Fetch so branch-existence and merge decisions see current remote
	// state. A failed fetch (offline, no remote) degrades to local state.
	if err := tr.Record("git fetch --all --prune", git.FetchAllPrune(ctx, e.RepoRoot)); err != nil {
		log.FromContext(ctx).Debug("fetch failed, continuing with local state", "err", err)
	}

	branchCreated := false
	switch {
	case git.LocalBranchExists(ctx, e.RepoRoot, req.Branch) || git.RemoteBranchExists(ctx, e.RepoRoot, req.Branch):
		cmd := fmt.Sprintf("git worktree add %s %s", path, req.Branch)
		if err := tr.Record(cmd, git.AddWorktree(ctx, e.RepoRoot, path, req.Branch)); err != nil {
			return nil, protocol.NewError(protocol.CodeGitError, false, "%v", err)
		}
	default:
		base := req.Base
		if base == "" {
			// Never fork from whatever happens to be checked out.
			return nil, protocol.NewError(protocol.CodeGitError, false, "base is required to create branch %q", req.Branch).
				WithSuggestion("pass the branch to fork from, e.g. \"base\": \"develop\"")
		}
		if !git.RefExists(ctx, e.RepoRoot, base) {
			err := protocol.NewError(protocol.CodeBranchNotFound, false, "base branch %q not found", base)
			if branches, lerr := git.ListLocalBranches(ctx, e.RepoRoot); lerr == nil {
				if s := suggestBranch(branches, base); s != "" && s != base {
					return nil, err.WithSuggestion("did you mean %q?", s)
				}
			}
			return nil, err
		}
		cmd := fmt.Sprintf("git worktree add -b %s %s %s", req.Branch, path, base)
		if err := tr.Record(cmd, git.AddWorktreeNewBranch(ctx, e.RepoRoot, path, req.Branch, base)); err != nil {
			return nil, protocol.NewError(protocol.CodeGitError, false, "%v", err)
		}
		branchCreated = true
	}

	// A fresh worktree must come up clean. Dirty here means smudge
	// filters or hooks touched the tree, which needs a human look.
	dirty, err := git.IsDirty(ctx, path)
	tr.Record(fmt.Sprintf("git -C %s status --short", path), err)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeGitError, false, "%v", err)
	}
	if dirty {
		return nil, protocol.NewError(protocol.CodeWorktreeDirty, false, "worktree %s is dirty immediately after creation", path).
			WithSuggestion("inspect the worktree for filter or hook side effects")
	}

	result := &CreateResult{
		Branch:        req.Branch,
		Base:          req.Base,
		Path:          path,
		BranchCreated: branchCreated,
		Transcript:    tr.Steps,
	}

	if e.Tracking {
		l, unlock, err := ledger.LoadLocked(e.RepoRoot)
		if err != nil {
			return nil, protocol.NewError(protocol.CodeTrackingMissing, true, "tracking ledger unreadable: %v", err).
				WithSuggestion("repair or delete .treekeep/ledger.jsonl; the worktree was created")
		}
		defer unlock()

		rec := ledger.NewRecord(req.Branch, path, req.Base, req.Purpose, req.Owner, ledger.StatusActive)
		l.Upsert(rec)
		if err := l.Save(e.RepoRoot); err != nil {
			return nil, protocol.NewError(protocol.CodeTrackingMissing, true, "failed to save tracking ledger: %v", err).
				WithSuggestion("the worktree was created; re-run scan to reconcile")
		}
		result.Tracked = true
		result.Record = &rec
	}

	return result, nil
}
