package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/treekeep/treekeep/internal/git"
	"github.com/treekeep/treekeep/internal/ledger"
	"github.com/treekeep/treekeep/internal/protocol"
)

// AbortRequest force-discards a worktree, bypassing merge-state checks.
type AbortRequest struct {
	Common
	Branch string `json:"branch"`
	// Approved must be set to discard uncommitted changes. Without it a
	// dirty worktree is refused.
	Approved bool `json:"approved,omitempty"`
	// DeleteBranch and DeleteRemote request branch deletion for
	// non-protected branches. Never honored for protected ones.
	DeleteBranch bool `json:"delete_branch,omitempty"`
	DeleteRemote bool `json:"delete_remote,omitempty"`
	// KeepBranchAck acknowledges that a protected branch will be kept
	// while its worktree is removed.
	KeepBranchAck bool `json:"keep_branch_ack,omitempty"`
}

// AbortResult reports a completed abort.
type AbortResult struct {
	Branch          string `json:"branch"`
	Path            string `json:"path"`
	Protected       bool   `json:"protected"`
	WorktreeRemoved bool   `json:"worktree_removed"`
	BranchDeleted   bool   `json:"branch_deleted"`
	RemoteDeleted   bool   `json:"remote_deleted"`
	Transcript      []Step `json:"transcript"`
}

// Abort removes a worktree regardless of merge state. Dirty worktrees
// need explicit approval, protected branches are never deleted, and the
// discarded record stays in the ledger as abandoned.
func (e *Env) Abort(ctx context.Context, req AbortRequest) (*AbortResult, error) {
	if req.Branch == "" {
		return nil, protocol.NewError(protocol.CodeGitError, false, "branch is required")
	}

	wtPath, err := git.BranchWorktree(ctx, e.RepoRoot, req.Branch)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeGitError, false, "%v", err)
	}
	if wtPath == "" || wtPath == e.RepoRoot {
		return nil, notFoundError(ctx, e, req.Branch)
	}

	protected := e.Protected.Contains(req.Branch)
	if (req.DeleteBranch || req.DeleteRemote) && !protected {
		// Branch deletion is requested; an unresolved protected set
		// must not let it through.
		if perr := e.Protected.RequireResolved(); perr != nil {
			return nil, perr
		}
	}

	dirty, err := git.IsDirty(ctx, wtPath)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeGitError, false, "%v", err)
	}
	if dirty && !req.Approved {
		return nil, protocol.NewError(protocol.CodeWorktreeDirty, true, "worktree %s has uncommitted changes", wtPath).
			WithSuggestion("re-run with approved=true to discard the changes")
	}

	if protected && !req.KeepBranchAck {
		return nil, protocol.NewError(protocol.CodeBranchProtected, true, "branch %q is protected; remove worktree but preserve branch?", req.Branch).
			WithSuggestion("re-run with keep_branch_ack=true to remove only the worktree")
	}

	var tr Transcript
	result := &AbortResult{Branch: req.Branch, Path: wtPath, Protected: protected}

	cmd := fmt.Sprintf("git worktree remove --force %s", wtPath)
	if err := tr.Record(cmd, git.RemoveWorktree(ctx, e.RepoRoot, wtPath, true)); err != nil {
		return nil, protocol.NewError(protocol.CodeGitError, false, "%v", err)
	}
	result.WorktreeRemoved = true

	if !protected && req.DeleteBranch {
		cmd = fmt.Sprintf("git branch -D %s", req.Branch)
		if err := tr.Record(cmd, git.DeleteLocalBranch(ctx, e.RepoRoot, req.Branch, true)); err != nil {
			return nil, protocol.NewError(protocol.CodeGitError, false, "worktree removed but branch delete failed: %v", err)
		}
		result.BranchDeleted = true
	}
	if !protected && req.DeleteRemote && git.HasOrigin(ctx, e.RepoRoot) {
		cmd = fmt.Sprintf("git push origin --delete %s", req.Branch)
		existed, err := git.DeleteRemoteBranch(ctx, e.RepoRoot, req.Branch)
		tr.Record(cmd, err)
		if err != nil {
			return nil, protocol.NewError(protocol.CodeGitError, false, "worktree removed but remote delete failed: %v", err)
		}
		result.RemoteDeleted = existed
	}

	if e.Tracking {
		l, unlock, err := ledger.LoadLocked(e.RepoRoot)
		if err != nil {
			return nil, protocol.NewError(protocol.CodeTrackingMissing, true, "tracking ledger unreadable: %v", err).
				WithSuggestion("the worktree was removed; repair .treekeep/ledger.jsonl")
		}
		defer unlock()

		rec := l.Find(req.Branch)
		if rec == nil {
			r := ledger.NewRecord(req.Branch, wtPath, "", "", "", ledger.StatusAbandoned)
			r.Notes = "aborted, worktree was not tracked"
			l.Upsert(r)
		} else {
			rec.Status = ledger.StatusAbandoned
			rec.LastChecked = time.Now().UTC()
			switch {
			case protected:
				rec.Notes = "aborted, protected branch preserved"
			case result.BranchDeleted:
				rec.Notes = "aborted, branch deleted"
			default:
				rec.Notes = "aborted"
			}
		}
		if err := l.Save(e.RepoRoot); err != nil {
			return nil, protocol.NewError(protocol.CodeTrackingMissing, true, "failed to save tracking ledger: %v", err)
		}
	}

	result.Transcript = tr.Steps
	return result, nil
}
