// Package protect resolves the set of branches that cleanup and abort
// must never delete. Resolution fails closed: when no source yields a
// non-empty set, branch-deleting operations refuse to proceed.
package protect

import (
	"context"
	"strings"

	"github.com/treekeep/treekeep/internal/config"
	"github.com/treekeep/treekeep/internal/git"
	"github.com/treekeep/treekeep/internal/protocol"
)

// Source says where a protected-branch set came from.
type Source string

const (
	// SourceExplicit: a protected_branches list from request or config.
	// Fully overrides detection, even when git-flow would add branches.
	SourceExplicit Source = "explicit"
	// SourceCached: the set cached in the repo's shared settings store
	// by a previous invocation.
	SourceCached Source = "cached"
	// SourceGitFlow: auto-detected from the repo's git-flow config.
	SourceGitFlow Source = "gitflow"
	// SourceDefaultBranch: fallback probe of the repo's default branch.
	SourceDefaultBranch Source = "default-branch"
	// SourceUnresolved: no source yielded a non-empty set.
	SourceUnresolved Source = "unresolved"
)

// Set is a resolved protected-branch set.
type Set struct {
	Branches []string
	Source   Source
	// NewlyDetected is true when the set came from detection rather than
	// configuration or cache, and should be written back to the shared
	// settings store.
	NewlyDetected bool
}

// Contains reports whether branch is protected.
func (s Set) Contains(branch string) bool {
	for _, b := range s.Branches {
		if b == branch {
			return true
		}
	}
	return false
}

// Resolved reports whether any source yielded a non-empty set.
func (s Set) Resolved() bool {
	return s.Source != SourceUnresolved && len(s.Branches) > 0
}

// RequireResolved returns the fail-closed configuration error when the
// set is unresolved. Mutating operations must call this before deleting
// any branch; read-only operations may proceed with an empty set but
// must report that detection failed.
func (s Set) RequireResolved() *protocol.Error {
	if s.Resolved() {
		return nil
	}
	return protocol.NewError(protocol.CodeProtectedBranchesMissing, false,
		"no protected-branch source available: configure protected_branches or enable git-flow").
		WithSuggestion("set protected_branches in the request or config, or run 'git flow init' in the repository")
}

// IntegrationBranch returns the branch merge state is evaluated against.
// With a git-flow layout feature branches integrate into develop; a
// develop branch in the set therefore wins over main.
func (s Set) IntegrationBranch() string {
	if len(s.Branches) == 0 {
		return ""
	}
	for _, b := range s.Branches {
		if b == "develop" || strings.HasPrefix(b, "develop/") {
			return b
		}
	}
	return s.Branches[0]
}

// Inputs carries the resolution sources for one invocation, an explicit
// snapshot instead of process-wide cached state.
type Inputs struct {
	// Explicit is the protected_branches list from the request or the
	// tool config. Takes precedence over everything else, as-is.
	Explicit []string
	// GitFlow is the configured git-flow layout from the tool config.
	GitFlow config.GitFlowConfig
	// Cached is the set cached in the repo's settings store.
	Cached []string
}

// Resolve determines the protected-branch set for a repo.
// Precedence: explicit list, configured git-flow layout, cached settings,
// git-flow auto-detection, default-branch probe. Detection results are
// flagged NewlyDetected so the caller can cache them; the cache write is
// an explicit side effect of the operation, not an implicit global one.
func Resolve(ctx context.Context, repoPath string, in Inputs) Set {
	if len(in.Explicit) > 0 {
		return Set{Branches: dedupe(in.Explicit), Source: SourceExplicit}
	}

	if in.GitFlow.MainBranch != "" {
		branches := []string{in.GitFlow.MainBranch}
		if in.GitFlow.Enabled && in.GitFlow.DevelopBranch != "" {
			branches = append(branches, in.GitFlow.DevelopBranch)
		}
		return Set{Branches: dedupe(branches), Source: SourceExplicit}
	}

	if len(in.Cached) > 0 {
		return Set{Branches: dedupe(in.Cached), Source: SourceCached}
	}

	if main, develop, ok := git.GitFlowBranches(ctx, repoPath); ok {
		branches := []string{main}
		if develop != "" {
			branches = append(branches, develop)
		}
		return Set{Branches: dedupe(branches), Source: SourceGitFlow, NewlyDetected: true}
	}

	if def := git.DefaultBranch(ctx, repoPath); def != "" {
		return Set{Branches: []string{def}, Source: SourceDefaultBranch, NewlyDetected: true}
	}

	return Set{Source: SourceUnresolved}
}

// dedupe removes duplicates while preserving order.
func dedupe(branches []string) []string {
	seen := make(map[string]bool, len(branches))
	var out []string
	for _, b := range branches {
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}
