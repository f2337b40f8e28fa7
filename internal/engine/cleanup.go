package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/treekeep/treekeep/internal/git"
	"github.com/treekeep/treekeep/internal/ledger"
	"github.com/treekeep/treekeep/internal/log"
	"github.com/treekeep/treekeep/internal/protocol"
)

// CleanupRequest removes finished worktrees. With Branch empty the whole
// repo is processed (batch mode); with Branch set only that worktree is.
type CleanupRequest struct {
	Common
	Branch string `json:"branch,omitempty"`
	// RequireClean defaults to true. Setting it false forces past the
	// dirty check in single-branch mode and must carry prior explicit
	// caller approval. It is never honored in batch mode.
	RequireClean *bool `json:"require_clean,omitempty"`
}

// Cleanup outcome actions.
const (
	ActionRemoved         = "removed"          // worktree and branch removed
	ActionWorktreeRemoved = "worktree_removed" // worktree removed, branch kept
	ActionSkipped         = "skipped"
	ActionPurged          = "purged" // stale record dropped, everything already gone
	ActionAnnotated       = "annotated"
)

// CleanupOutcome is the per-worktree result of a batch or single cleanup.
type CleanupOutcome struct {
	Branch        string `json:"branch"`
	Path          string `json:"path,omitempty"`
	Action        string `json:"action"`
	Code          string `json:"code,omitempty"` // set for skips, e.g. WORKTREE.DIRTY
	Protected     bool   `json:"protected"`
	BranchDeleted bool   `json:"branch_deleted"`
	RemoteDeleted bool   `json:"remote_deleted"`
	Notes         string `json:"notes,omitempty"`
}

// CleanupResult is the collected report of one cleanup invocation.
type CleanupResult struct {
	Mode     string           `json:"mode"` // "batch" or "single"
	Outcomes []CleanupOutcome `json:"outcomes"`
	Removed  int              `json:"removed"`
	Skipped  int              `json:"skipped"`
	// Discovered lists branches whose worktrees were found during
	// reconciliation without a ledger record.
	Discovered []string `json:"discovered"`
	Transcript []Step   `json:"transcript"`
}

// Cleanup removes merged, clean, non-protected worktrees and their
// branches. Protected branches are never deleted; their worktrees may
// be removed. The protected set must resolve before any git mutation.
func (e *Env) Cleanup(ctx context.Context, req CleanupRequest) (*CleanupResult, error) {
	if perr := e.Protected.RequireResolved(); perr != nil {
		return nil, perr
	}

	var tr Transcript
	if err := tr.Record("git fetch --all --prune", git.FetchAllPrune(ctx, e.RepoRoot)); err != nil {
		log.FromContext(ctx).Debug("fetch failed, continuing with local state", "err", err)
	}

	integration := e.Protected.IntegrationBranch()

	result := &CleanupResult{
		Mode:       "batch",
		Outcomes:   []CleanupOutcome{},
		Discovered: []string{},
	}
	if req.Branch != "" {
		result.Mode = "single"
	}

	live, err := liveWorktrees(ctx, e)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeGitError, false, "%v", err)
	}

	var l *ledger.Ledger
	var unlock func()
	if e.Tracking {
		l, unlock, err = ledger.LoadLocked(e.RepoRoot)
		if err != nil {
			return nil, protocol.NewError(protocol.CodeTrackingMissing, true, "tracking ledger unreadable: %v", err).
				WithSuggestion("repair or delete .treekeep/ledger.jsonl, or re-run with tracking_enabled=false")
		}
		defer unlock()

		lw := make([]ledger.LiveWorktree, 0, len(live))
		for _, wt := range live {
			lw = append(lw, ledger.LiveWorktree{Branch: wt.Branch, Path: wt.Path})
		}
		rr := l.Reconcile(lw)
		for _, rec := range rr.Discovered {
			result.Discovered = append(result.Discovered, rec.Branch)
		}
		if result.Mode == "batch" {
			for _, rec := range rr.Stale {
				result.Outcomes = append(result.Outcomes, e.disposeStale(ctx, l, rec, &tr))
			}
		}
	}

	if result.Mode == "single" {
		outcome, found := e.cleanupSingle(ctx, req, live, l, integration, &tr)
		if !found {
			// Reconciliation may have added discovered records; they
			// must persist even when the requested branch is unknown.
			if l != nil {
				if serr := l.Save(e.RepoRoot); serr != nil {
					return nil, protocol.NewError(protocol.CodeTrackingMissing, true, "failed to save tracking ledger: %v", serr)
				}
			}
			return nil, notFoundError(ctx, e, req.Branch)
		}
		result.Outcomes = append(result.Outcomes, outcome)
		tally(result)
		result.Transcript = tr.Steps
		if l != nil {
			if err := l.Save(e.RepoRoot); err != nil {
				return nil, protocol.NewError(protocol.CodeTrackingMissing, true, "failed to save tracking ledger: %v", err)
			}
		}
		// Single mode surfaces the skip as an error so the caller gets
		// the code directly.
		switch outcome.Code {
		case "":
			return result, nil
		case protocol.CodeWorktreeDirty:
			return nil, protocol.NewError(outcome.Code, true, "branch %q: %s", req.Branch, outcome.Notes).
				WithSuggestion("commit or stash the changes, or re-run with require_clean=false after confirming the work is disposable")
		case protocol.CodeWorktreeUnmerged:
			return nil, protocol.NewError(outcome.Code, true, "branch %q: %s", req.Branch, outcome.Notes).
				WithSuggestion("merge the branch into %s first, or use abort to discard it", integration)
		default:
			return nil, protocol.NewError(protocol.CodeGitError, false, "branch %q: %s", req.Branch, outcome.Notes)
		}
	}

	for _, wt := range live {
		if wt.Branch == "" || wt.Branch == "(detached)" {
			continue
		}
		outcome := e.cleanupOne(ctx, wt, integration, true, &tr)
		applyOutcome(l, outcome)
		result.Outcomes = append(result.Outcomes, outcome)
	}
	tally(result)
	result.Transcript = tr.Steps

	if l != nil {
		if err := l.Save(e.RepoRoot); err != nil {
			return nil, protocol.NewError(protocol.CodeTrackingMissing, true, "failed to save tracking ledger: %v", err)
		}
	}
	return result, nil
}

func tally(r *CleanupResult) {
	for _, o := range r.Outcomes {
		switch o.Action {
		case ActionRemoved, ActionWorktreeRemoved:
			r.Removed++
		case ActionSkipped:
			r.Skipped++
		}
	}
}

// cleanupSingle locates the one requested worktree and applies the batch
// decision logic to it, honoring the require_clean override.
func (e *Env) cleanupSingle(ctx context.Context, req CleanupRequest, live []git.WorktreeInfo, l *ledger.Ledger, integration string, tr *Transcript) (CleanupOutcome, bool) {
	requireClean := true
	if req.RequireClean != nil {
		requireClean = *req.RequireClean
	}

	for _, wt := range live {
		if wt.Branch != req.Branch {
			continue
		}
		outcome := e.cleanupOne(ctx, wt, integration, requireClean, tr)
		applyOutcome(l, outcome)
		return outcome, true
	}
	return CleanupOutcome{}, false
}

// cleanupOne runs the decision ladder for one live worktree:
// protected, dirty, merge state, then removal.
func (e *Env) cleanupOne(ctx context.Context, wt git.WorktreeInfo, integration string, requireClean bool, tr *Transcript) CleanupOutcome {
	outcome := CleanupOutcome{Branch: wt.Branch, Path: wt.Path}

	dirty, err := git.IsDirty(ctx, wt.Path)
	if err != nil {
		outcome.Action = ActionSkipped
		outcome.Code = protocol.CodeGitError
		outcome.Notes = err.Error()
		return outcome
	}
	if dirty && requireClean {
		outcome.Action = ActionSkipped
		outcome.Code = protocol.CodeWorktreeDirty
		outcome.Notes = "uncommitted changes"
		return outcome
	}

	if e.Protected.Contains(wt.Branch) {
		// Protected branches skip merge-state logic entirely: the
		// worktree may go, the branch never does.
		outcome.Protected = true
		cmd := fmt.Sprintf("git worktree remove %s", wt.Path)
		if err := tr.Record(cmd, git.RemoveWorktree(ctx, e.RepoRoot, wt.Path, dirty)); err != nil {
			outcome.Action = ActionSkipped
			outcome.Code = protocol.CodeGitError
			outcome.Notes = err.Error()
			return outcome
		}
		outcome.Action = ActionWorktreeRemoved
		outcome.Notes = "protected branch, branch preserved"
		return outcome
	}

	// Merge state is computed against the integration branch, not HEAD.
	// HEAD may itself be a feature branch and would yield false negatives.
	merged, err := git.MergedBranches(ctx, e.RepoRoot, integration)
	if err != nil {
		outcome.Action = ActionSkipped
		outcome.Code = protocol.CodeGitError
		outcome.Notes = err.Error()
		return outcome
	}
	unique := 0
	if merged[wt.Branch] {
		unique, err = git.UniqueCommitCount(ctx, e.RepoRoot, integration, wt.Branch)
		if err != nil {
			outcome.Action = ActionSkipped
			outcome.Code = protocol.CodeGitError
			outcome.Notes = err.Error()
			return outcome
		}
	}
	if !merged[wt.Branch] || unique > 0 {
		outcome.Action = ActionSkipped
		outcome.Code = protocol.CodeWorktreeUnmerged
		outcome.Notes = fmt.Sprintf("not merged into %s", integration)
		return outcome
	}

	cmd := fmt.Sprintf("git worktree remove %s", wt.Path)
	if err := tr.Record(cmd, git.RemoveWorktree(ctx, e.RepoRoot, wt.Path, dirty)); err != nil {
		outcome.Action = ActionSkipped
		outcome.Code = protocol.CodeGitError
		outcome.Notes = err.Error()
		return outcome
	}

	cmd = fmt.Sprintf("git branch -d %s", wt.Branch)
	if err := tr.Record(cmd, git.DeleteLocalBranch(ctx, e.RepoRoot, wt.Branch, false)); err != nil {
		outcome.Action = ActionWorktreeRemoved
		outcome.Code = protocol.CodeGitError
		outcome.Notes = fmt.Sprintf("worktree removed but branch delete failed: %v", err)
		return outcome
	}
	outcome.BranchDeleted = true

	if git.HasOrigin(ctx, e.RepoRoot) {
		cmd = fmt.Sprintf("git push origin --delete %s", wt.Branch)
		existed, err := git.DeleteRemoteBranch(ctx, e.RepoRoot, wt.Branch)
		tr.Record(cmd, err)
		if err != nil {
			outcome.Action = ActionRemoved
			outcome.Notes = fmt.Sprintf("remote branch delete failed: %v", err)
			return outcome
		}
		outcome.RemoteDeleted = existed
	}

	outcome.Action = ActionRemoved
	return outcome
}

// disposeStale handles a ledger record whose worktree directory is gone.
// The record is dropped only once the remote branch is also gone;
// otherwise it stays annotated so the next pass sees it.
func (e *Env) disposeStale(ctx context.Context, l *ledger.Ledger, rec ledger.Record, tr *Transcript) CleanupOutcome {
	outcome := CleanupOutcome{Branch: rec.Branch, Path: rec.Path}

	tr.Record("git worktree prune", git.PruneWorktrees(ctx, e.RepoRoot))

	remoteGone := !git.RemoteBranchExists(ctx, e.RepoRoot, rec.Branch)
	localGone := !git.LocalBranchExists(ctx, e.RepoRoot, rec.Branch)
	if remoteGone && localGone {
		l.Remove(rec.Branch)
		outcome.Action = ActionPurged
		outcome.Notes = "worktree, local branch, and remote branch all gone"
		return outcome
	}

	if existing := l.Find(rec.Branch); existing != nil {
		existing.Notes = "worktree directory missing, branch still exists"
		existing.LastChecked = time.Now().UTC()
	}
	outcome.Action = ActionAnnotated
	outcome.Notes = "worktree directory missing, branch still exists"
	return outcome
}

// applyOutcome transitions the ledger record for a cleanup outcome.
// Skips annotate, removals become cleaned, and records are never
// silently dropped here.
func applyOutcome(l *ledger.Ledger, o CleanupOutcome) {
	if l == nil {
		return
	}
	rec := l.Find(o.Branch)
	if rec == nil {
		return
	}
	rec.LastChecked = time.Now().UTC()
	switch {
	case o.Action == ActionRemoved || o.Action == ActionWorktreeRemoved:
		rec.Status = ledger.StatusCleaned
		rec.Notes = o.Notes
	case o.Code == protocol.CodeWorktreeDirty:
		rec.Notes = "dirty"
	case o.Code == protocol.CodeWorktreeUnmerged:
		rec.Notes = "unmerged"
	case o.Notes != "":
		rec.Notes = o.Notes
	}
}
