package engine

import (
	"context"
	"fmt"

	"github.com/treekeep/treekeep/internal/git"
	"github.com/treekeep/treekeep/internal/ledger"
	"github.com/treekeep/treekeep/internal/log"
	"github.com/treekeep/treekeep/internal/protocol"
)

// ScanRequest asks for a report of live worktrees and tracking drift.
type ScanRequest struct {
	Common
}

// ScanWorktree is one live worktree in a scan report.
type ScanWorktree struct {
	Branch  string        `json:"branch"`
	Path    string        `json:"path"`
	Head    string        `json:"head"`
	Dirty   bool          `json:"dirty"`
	Merged  bool          `json:"merged"`
	Tracked bool          `json:"tracked"`
	Status  ledger.Status `json:"status,omitempty"`
	Purpose string        `json:"purpose,omitempty"`
	Owner   string        `json:"owner,omitempty"`
}

// ScanResult is the scan report. Scan is strictly read-only against git
// and the ledger; the only write a scan may trigger is the protected
// set cache in Prepare.
type ScanResult struct {
	Worktrees       []ScanWorktree `json:"worktrees"`
	TrackingEnabled bool           `json:"tracking_enabled"`
	// TrackingMissingRows lists branches with a live worktree but no
	// ledger record.
	TrackingMissingRows []string `json:"tracking_missing_rows"`
	// TrackingExtraRows lists active or discovered records whose
	// worktree no longer exists.
	TrackingExtraRows []string `json:"tracking_extra_rows"`

	ProtectedBranches         []string `json:"protected_branches"`
	ProtectedSource           string   `json:"protected_source"`
	ProtectedCacheUpdated     bool     `json:"protected_cache_updated"`
	ProtectionDetectionFailed bool     `json:"protection_detection_failed"`

	Recommendations []string `json:"recommendations"`
}

// Scan reports live worktrees, their dirty and merge state, and how the
// tracking ledger diverges from reality. It never mutates the ledger;
// drift is reported for cleanup to resolve.
func (e *Env) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	live, err := liveWorktrees(ctx, e)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeGitError, false, "%v", err)
	}

	result := &ScanResult{
		Worktrees:                 []ScanWorktree{},
		TrackingEnabled:           e.Tracking,
		TrackingMissingRows:       []string{},
		TrackingExtraRows:         []string{},
		ProtectedBranches:         e.Protected.Branches,
		ProtectedSource:           string(e.Protected.Source),
		ProtectedCacheUpdated:     e.CacheUpdated,
		ProtectionDetectionFailed: !e.Protected.Resolved(),
		Recommendations:           []string{},
	}

	var merged map[string]bool
	if integration := e.Protected.IntegrationBranch(); integration != "" {
		merged, err = git.MergedBranches(ctx, e.RepoRoot, integration)
		if err != nil {
			// branch --merged is advisory in a scan; report without it.
			log.FromContext(ctx).Debug("merge state unavailable", "base", integration, "err", err)
		}
	}

	var l *ledger.Ledger
	if e.Tracking {
		l, err = ledger.Load(e.RepoRoot)
		if err != nil {
			return nil, protocol.NewError(protocol.CodeTrackingMissing, true, "tracking ledger unreadable: %v", err).
				WithSuggestion("repair or delete .treekeep/ledger.jsonl, or re-run with tracking_enabled=false")
		}
	}

	for _, wt := range live {
		sw := ScanWorktree{Branch: wt.Branch, Path: wt.Path, Head: wt.Head}

		dirty, derr := git.IsDirty(ctx, wt.Path)
		if derr != nil {
			log.FromContext(ctx).Debug("status failed", "path", wt.Path, "err", derr)
		}
		sw.Dirty = dirty
		if merged != nil {
			sw.Merged = merged[wt.Branch]
		}

		if l != nil && wt.Branch != "(detached)" {
			if rec := l.Find(wt.Branch); rec != nil {
				sw.Tracked = true
				sw.Status = rec.Status
				sw.Purpose = rec.Purpose
				sw.Owner = rec.Owner
			} else {
				result.TrackingMissingRows = append(result.TrackingMissingRows, wt.Branch)
			}
		}

		switch {
		case sw.Dirty:
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("%s: uncommitted changes, commit or stash before cleanup", wt.Branch))
		case sw.Merged && !e.Protected.Contains(wt.Branch):
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("%s: merged and clean, eligible for cleanup", wt.Branch))
		}

		result.Worktrees = append(result.Worktrees, sw)
	}

	if l != nil {
		liveByBranch := make(map[string]bool, len(live))
		for _, wt := range live {
			liveByBranch[wt.Branch] = true
		}
		for _, rec := range l.Records {
			if rec.Status != ledger.StatusActive && rec.Status != ledger.StatusDiscovered {
				continue
			}
			if !liveByBranch[rec.Branch] {
				result.TrackingExtraRows = append(result.TrackingExtraRows, rec.Branch)
			}
		}
	}

	if len(result.TrackingMissingRows) > 0 || len(result.TrackingExtraRows) > 0 {
		result.Recommendations = append(result.Recommendations,
			"tracking ledger out of date, run cleanup to reconcile")
	}
	if result.ProtectionDetectionFailed {
		result.Recommendations = append(result.Recommendations,
			"protected branches could not be determined, configure protected_branches before cleanup")
	}

	return result, nil
}
