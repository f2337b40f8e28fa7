package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/treekeep/treekeep/internal/ledger"
	"github.com/treekeep/treekeep/internal/log"
	"github.com/treekeep/treekeep/internal/protect"
	"github.com/treekeep/treekeep/internal/protocol"
)

// logCtx returns a context with a discard logger attached.
func logCtx() context.Context {
	return log.WithLogger(context.Background(), log.New(io.Discard, false, false))
}

// resolveTempDir creates a temp directory and resolves macOS symlinks.
func resolveTempDir(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(tmpDir)
	if err != nil {
		t.Fatalf("failed to resolve symlinks for %s: %v", tmpDir, err)
	}
	return resolved
}

// gitRun runs a git command in dir and fails the test on error.
func gitRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	out, err := exec.Command("git", args...).CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

// setupRepo creates a git repo with main branch and an initial commit.
func setupRepo(t *testing.T) string {
	t.Helper()
	tmpDir := resolveTempDir(t)
	repo := filepath.Join(tmpDir, "test-repo")

	gitRun(t, "", "init", "-b", "main", repo)
	gitRun(t, repo, "config", "user.email", "test@test.com")
	gitRun(t, repo, "config", "user.name", "Test User")
	gitRun(t, repo, "config", "commit.gpgsign", "false")

	commitFile(t, repo, "README.md")
	return repo
}

// setupRepoWithOrigin creates a repo cloned from a local bare origin,
// with main pushed and tracking set up.
func setupRepoWithOrigin(t *testing.T) string {
	t.Helper()
	repo := setupRepo(t)
	origin := filepath.Join(filepath.Dir(repo), "origin.git")
	gitRun(t, "", "init", "--bare", origin)
	gitRun(t, repo, "remote", "add", "origin", origin)
	gitRun(t, repo, "push", "-u", "origin", "main")
	return repo
}

// commitFile creates and commits a file in dir.
func commitFile(t *testing.T, dir, name string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("content for "+name+"\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	gitRun(t, dir, "add", name)
	gitRun(t, dir, "commit", "-m", "Add "+name)
}

// dirtyFile drops an uncommitted file into a worktree.
func dirtyFile(t *testing.T, dir string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "wip.txt"), []byte("wip\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	gitRun(t, dir, "add", "wip.txt")
}

// testEnv builds an Env with an explicit protected set and tracking on.
func testEnv(t *testing.T, repo string, protected ...string) *Env {
	t.Helper()
	env := &Env{
		RepoRoot:     repo,
		WorktreeBase: filepath.Join(filepath.Dir(repo), "worktrees"),
		Tracking:     true,
	}
	if len(protected) > 0 {
		env.Protected = protect.Set{Branches: protected, Source: protect.SourceExplicit}
	} else {
		env.Protected = protect.Set{Source: protect.SourceUnresolved}
	}
	return env
}

func wantCode(t *testing.T, err error, code string) *protocol.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	var pe *protocol.Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *protocol.Error, got %T: %v", err, err)
	}
	if pe.Code != code {
		t.Fatalf("error code = %s, want %s (%s)", pe.Code, code, pe.Message)
	}
	return pe
}

func mustCreate(t *testing.T, env *Env, branch, base string) *CreateResult {
	t.Helper()
	res, err := env.Create(logCtx(), CreateRequest{
		Branch: branch, Base: base, Purpose: "test", Owner: "tester",
	})
	if err != nil {
		t.Fatalf("Create(%s) = %v", branch, err)
	}
	return res
}

func loadLedger(t *testing.T, repo string) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Load(repo)
	if err != nil {
		t.Fatalf("ledger.Load = %v", err)
	}
	return l
}

func TestCreateNewBranch(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	res := mustCreate(t, env, "feature/x", "main")

	if !res.BranchCreated {
		t.Error("BranchCreated = false, want true")
	}
	wantPath := filepath.Join(env.WorktreeBase, "feature-x")
	if res.Path != wantPath {
		t.Errorf("Path = %q, want %q", res.Path, wantPath)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Errorf("worktree path missing: %v", err)
	}
	if !res.Tracked || res.Record == nil {
		t.Fatal("expected a tracked record")
	}
	if res.Record.Status != ledger.StatusActive {
		t.Errorf("record status = %s, want active", res.Record.Status)
	}

	l := loadLedger(t, repo)
	rec := l.Find("feature/x")
	if rec == nil {
		t.Fatal("ledger has no record for feature/x")
	}
	if rec.Owner != "tester" || rec.Purpose != "test" {
		t.Errorf("record annotations = %q/%q", rec.Owner, rec.Purpose)
	}
}

func TestCreateExistingBranch(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	gitRun(t, repo, "branch", "feature/existing")
	env := testEnv(t, repo, "main")

	res := mustCreate(t, env, "feature/existing", "")
	if res.BranchCreated {
		t.Error("BranchCreated = true for a pre-existing branch")
	}
}

func TestCreatePathExists(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	taken := filepath.Join(env.WorktreeBase, "feature-x")
	if err := os.MkdirAll(taken, 0755); err != nil {
		t.Fatal(err)
	}

	_, err := env.Create(logCtx(), CreateRequest{Branch: "feature/x", Purpose: "test", Owner: "tester"})
	pe := wantCode(t, err, protocol.CodeWorktreeExists)
	if !pe.Recoverable {
		t.Error("WORKTREE.EXISTS should be recoverable")
	}
}

func TestCreateBranchInUse(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	_, err := env.Create(logCtx(), CreateRequest{Branch: "main", Purpose: "test", Owner: "tester"})
	wantCode(t, err, protocol.CodeWorktreeBranchInUse)
}

func TestCreateBaseNotFound(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	_, err := env.Create(logCtx(), CreateRequest{
		Branch: "feature/x", Base: "no-such-base", Purpose: "test", Owner: "tester",
	})
	pe := wantCode(t, err, protocol.CodeBranchNotFound)
	if pe.Recoverable {
		t.Error("BRANCH.NOT_FOUND should be fatal")
	}
}

func TestCreateNewBranchRequiresBase(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	_, err := env.Create(logCtx(), CreateRequest{
		Branch: "feature/nobase", Purpose: "test", Owner: "tester",
	})
	if err == nil {
		t.Fatal("creating an unknown branch without a base should error, not fork from the checked-out branch")
	}

	// Refusal means nothing was created.
	if _, serr := os.Stat(filepath.Join(env.WorktreeBase, "feature-nobase")); !errors.Is(serr, os.ErrNotExist) {
		t.Error("worktree directory created despite missing base")
	}
	if out, gerr := exec.Command("git", "-C", repo, "rev-parse", "--verify", "refs/heads/feature/nobase").CombinedOutput(); gerr == nil {
		t.Errorf("branch created despite missing base: %s", out)
	}
}

func TestCreateMissingAnnotations(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	if _, err := env.Create(logCtx(), CreateRequest{Branch: "feature/x"}); err == nil {
		t.Error("Create without purpose/owner should error")
	}
}

func TestScanReportsWorktreesAndDrift(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	mustCreate(t, env, "feature/tracked", "main")

	// A worktree created outside the tool has no ledger record.
	manual := filepath.Join(env.WorktreeBase, "feature-manual")
	gitRun(t, repo, "worktree", "add", "-b", "feature/manual", manual, "main")

	dirtyFile(t, manual)

	res, err := env.Scan(logCtx(), ScanRequest{})
	if err != nil {
		t.Fatalf("Scan = %v", err)
	}

	if len(res.Worktrees) != 2 {
		t.Fatalf("got %d worktrees, want 2", len(res.Worktrees))
	}
	byBranch := map[string]ScanWorktree{}
	for _, wt := range res.Worktrees {
		byBranch[wt.Branch] = wt
	}

	tracked := byBranch["feature/tracked"]
	if !tracked.Tracked || tracked.Status != ledger.StatusActive {
		t.Errorf("feature/tracked = %+v, want tracked active", tracked)
	}
	if tracked.Dirty {
		t.Error("feature/tracked reported dirty")
	}

	if manualWt := byBranch["feature/manual"]; manualWt.Tracked || !manualWt.Dirty {
		t.Errorf("feature/manual = %+v, want untracked dirty", manualWt)
	}

	if len(res.TrackingMissingRows) != 1 || res.TrackingMissingRows[0] != "feature/manual" {
		t.Errorf("TrackingMissingRows = %v", res.TrackingMissingRows)
	}

	// Scan never mutates the ledger.
	l := loadLedger(t, repo)
	if l.Find("feature/manual") != nil {
		t.Error("scan added a ledger record")
	}

	var sawDirty, sawDrift bool
	for _, rec := range res.Recommendations {
		if strings.Contains(rec, "feature/manual") {
			sawDirty = true
		}
		if strings.Contains(rec, "out of date") {
			sawDrift = true
		}
	}
	if !sawDirty || !sawDrift {
		t.Errorf("Recommendations = %v, want dirty and drift advice", res.Recommendations)
	}
}

func TestScanReportsExtraRows(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	l := &ledger.Ledger{}
	l.Upsert(ledger.NewRecord("feature/gone", filepath.Join(env.WorktreeBase, "feature-gone"), "main", "test", "tester", ledger.StatusActive))
	if err := l.Save(repo); err != nil {
		t.Fatal(err)
	}

	res, err := env.Scan(logCtx(), ScanRequest{})
	if err != nil {
		t.Fatalf("Scan = %v", err)
	}
	if len(res.TrackingExtraRows) != 1 || res.TrackingExtraRows[0] != "feature/gone" {
		t.Errorf("TrackingExtraRows = %v", res.TrackingExtraRows)
	}
}

func TestScanTwiceIsStable(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	mustCreate(t, env, "feature/a", "main")
	manual := filepath.Join(env.WorktreeBase, "feature-manual")
	gitRun(t, repo, "worktree", "add", "-b", "feature/manual", manual, "main")
	dirtyFile(t, manual)

	first, err := env.Scan(logCtx(), ScanRequest{})
	if err != nil {
		t.Fatalf("first Scan = %v", err)
	}
	second, err := env.Scan(logCtx(), ScanRequest{})
	if err != nil {
		t.Fatalf("second Scan = %v", err)
	}

	// With no external change between runs, the reports are identical.
	if !reflect.DeepEqual(first.Worktrees, second.Worktrees) {
		t.Errorf("worktrees differ between scans:\n%+v\n%+v", first.Worktrees, second.Worktrees)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("reports differ between scans:\n%+v\n%+v", first, second)
	}
}

func TestScanDetectionFailureIsReported(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo) // unresolved protected set

	res, err := env.Scan(logCtx(), ScanRequest{})
	if err != nil {
		t.Fatalf("Scan = %v", err)
	}
	if !res.ProtectionDetectionFailed {
		t.Error("ProtectionDetectionFailed = false")
	}
}

func TestCleanupBatchMergedClean(t *testing.T) {
	t.Parallel()
	repo := setupRepoWithOrigin(t)
	env := testEnv(t, repo, "main")

	res := mustCreate(t, env, "feature/x", "main")
	gitRun(t, repo, "push", "origin", "feature/x")

	cres, err := env.Cleanup(logCtx(), CleanupRequest{})
	if err != nil {
		t.Fatalf("Cleanup = %v", err)
	}
	if cres.Mode != "batch" {
		t.Errorf("Mode = %s", cres.Mode)
	}
	if len(cres.Outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1: %+v", len(cres.Outcomes), cres.Outcomes)
	}
	o := cres.Outcomes[0]
	if o.Action != ActionRemoved || !o.BranchDeleted || !o.RemoteDeleted {
		t.Errorf("outcome = %+v, want removed with branch and remote deleted", o)
	}
	if _, err := os.Stat(res.Path); !errors.Is(err, os.ErrNotExist) {
		t.Error("worktree directory still exists")
	}

	rec := loadLedger(t, repo).Find("feature/x")
	if rec == nil {
		t.Fatal("record dropped; cleanup keeps cleaned records for audit")
	}
	if rec.Status != ledger.StatusCleaned {
		t.Errorf("record status = %s, want cleaned", rec.Status)
	}
}

func TestCleanupSingleProtected(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	gitRun(t, repo, "branch", "develop")
	env := testEnv(t, repo, "main", "develop")

	wt := filepath.Join(env.WorktreeBase, "develop")
	gitRun(t, repo, "worktree", "add", wt, "develop")

	res, err := env.Cleanup(logCtx(), CleanupRequest{Branch: "develop"})
	if err != nil {
		t.Fatalf("Cleanup(develop) = %v", err)
	}
	o := res.Outcomes[len(res.Outcomes)-1]
	if o.Action != ActionWorktreeRemoved || !o.Protected {
		t.Errorf("outcome = %+v, want protected worktree_removed", o)
	}
	if o.BranchDeleted || o.RemoteDeleted {
		t.Error("protected branch was deleted")
	}

	// The branch survives its worktree.
	out, err := exec.Command("git", "-C", repo, "rev-parse", "--verify", "refs/heads/develop").CombinedOutput()
	if err != nil {
		t.Fatalf("develop branch gone: %v\n%s", err, out)
	}

	rec := loadLedger(t, repo).Find("develop")
	if rec == nil || !strings.Contains(rec.Notes, "protected") {
		t.Errorf("record = %+v, want protected annotation", rec)
	}
}

func TestCleanupBatchSkipsDirty(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	res := mustCreate(t, env, "feature/wip", "main")
	dirtyFile(t, res.Path)

	cres, err := env.Cleanup(logCtx(), CleanupRequest{})
	if err != nil {
		t.Fatalf("Cleanup = %v, batch must not raise on a dirty skip", err)
	}
	o := cres.Outcomes[0]
	if o.Action != ActionSkipped || o.Code != protocol.CodeWorktreeDirty {
		t.Errorf("outcome = %+v, want dirty skip", o)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Error("dirty worktree was removed")
	}

	rec := loadLedger(t, repo).Find("feature/wip")
	if rec == nil || rec.Status != ledger.StatusActive {
		t.Errorf("record = %+v, want untouched active record", rec)
	}
	if rec.Notes != "dirty" {
		t.Errorf("record notes = %q, want dirty", rec.Notes)
	}
}

func TestCleanupSingleUnmerged(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	res := mustCreate(t, env, "feature/y", "main")
	commitFile(t, res.Path, "extra.txt")

	_, err := env.Cleanup(logCtx(), CleanupRequest{Branch: "feature/y"})
	pe := wantCode(t, err, protocol.CodeWorktreeUnmerged)
	if !pe.Recoverable {
		t.Error("WORKTREE.UNMERGED should be recoverable")
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Error("unmerged worktree was removed")
	}

	rec := loadLedger(t, repo).Find("feature/y")
	if rec == nil || rec.Notes != "unmerged" {
		t.Errorf("record = %+v, want unmerged annotation", rec)
	}
}

func TestCleanupFailsClosedWithoutProtectedSet(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo) // unresolved

	res := mustCreate(t, env, "feature/x", "main")

	_, err := env.Cleanup(logCtx(), CleanupRequest{})
	wantCode(t, err, protocol.CodeProtectedBranchesMissing)

	// Fail-closed means no git mutation happened.
	if _, err := os.Stat(res.Path); err != nil {
		t.Error("worktree removed despite unresolved protected set")
	}
}

func TestCleanupSingleDirtyOverride(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	res := mustCreate(t, env, "feature/x", "main")
	dirtyFile(t, res.Path)

	_, err := env.Cleanup(logCtx(), CleanupRequest{Branch: "feature/x"})
	wantCode(t, err, protocol.CodeWorktreeDirty)

	requireClean := false
	cres, err := env.Cleanup(logCtx(), CleanupRequest{Branch: "feature/x", RequireClean: &requireClean})
	if err != nil {
		t.Fatalf("Cleanup with require_clean=false = %v", err)
	}
	o := cres.Outcomes[len(cres.Outcomes)-1]
	if o.Action != ActionRemoved {
		t.Errorf("outcome = %+v, want removed", o)
	}
}

func TestCleanupSingleNotFound(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	mustCreate(t, env, "feature/present", "main")

	_, err := env.Cleanup(logCtx(), CleanupRequest{Branch: "feature/presnt"})
	pe := wantCode(t, err, protocol.CodeWorktreeNotFound)
	if !strings.Contains(pe.SuggestedAction, "feature/present") {
		t.Errorf("SuggestedAction = %q, want fuzzy suggestion", pe.SuggestedAction)
	}
}

func TestCleanupSingleNotFoundPersistsReconciliation(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	manual := filepath.Join(env.WorktreeBase, "feature-manual")
	gitRun(t, repo, "worktree", "add", "-b", "feature/manual", manual, "main")

	_, err := env.Cleanup(logCtx(), CleanupRequest{Branch: "feature/nowhere"})
	wantCode(t, err, protocol.CodeWorktreeNotFound)

	// The discovered record from reconciliation survives the error.
	rec := loadLedger(t, repo).Find("feature/manual")
	if rec == nil || rec.Status != ledger.StatusDiscovered {
		t.Errorf("record = %+v, want discovered record persisted", rec)
	}
}

func TestCleanupPurgesFullyGoneRecords(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	l := &ledger.Ledger{}
	l.Upsert(ledger.NewRecord("feature/gone", filepath.Join(env.WorktreeBase, "feature-gone"), "main", "test", "tester", ledger.StatusActive))
	if err := l.Save(repo); err != nil {
		t.Fatal(err)
	}

	cres, err := env.Cleanup(logCtx(), CleanupRequest{})
	if err != nil {
		t.Fatalf("Cleanup = %v", err)
	}
	var purged bool
	for _, o := range cres.Outcomes {
		if o.Branch == "feature/gone" && o.Action == ActionPurged {
			purged = true
		}
	}
	if !purged {
		t.Errorf("outcomes = %+v, want feature/gone purged", cres.Outcomes)
	}
	if loadLedger(t, repo).Find("feature/gone") != nil {
		t.Error("fully gone record still in ledger")
	}
}

func TestCleanupReconcilesDiscovered(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	manual := filepath.Join(env.WorktreeBase, "feature-manual")
	gitRun(t, repo, "worktree", "add", "-b", "feature/manual", manual, "main")
	dirtyFile(t, manual) // keep it from being cleaned in the same pass

	cres, err := env.Cleanup(logCtx(), CleanupRequest{})
	if err != nil {
		t.Fatalf("Cleanup = %v", err)
	}
	if len(cres.Discovered) != 1 || cres.Discovered[0] != "feature/manual" {
		t.Errorf("Discovered = %v", cres.Discovered)
	}

	rec := loadLedger(t, repo).Find("feature/manual")
	if rec == nil || rec.Status != ledger.StatusDiscovered {
		t.Errorf("record = %+v, want discovered", rec)
	}
}

func TestAbortDirtyNeedsApproval(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	res := mustCreate(t, env, "feature/doomed", "main")
	dirtyFile(t, res.Path)

	_, err := env.Abort(logCtx(), AbortRequest{Branch: "feature/doomed"})
	pe := wantCode(t, err, protocol.CodeWorktreeDirty)
	if !pe.Recoverable {
		t.Error("WORKTREE.DIRTY should be recoverable")
	}

	ares, err := env.Abort(logCtx(), AbortRequest{Branch: "feature/doomed", Approved: true})
	if err != nil {
		t.Fatalf("Abort approved = %v", err)
	}
	if !ares.WorktreeRemoved {
		t.Error("WorktreeRemoved = false")
	}
	if ares.BranchDeleted {
		t.Error("branch deleted without delete_branch")
	}

	rec := loadLedger(t, repo).Find("feature/doomed")
	if rec == nil || rec.Status != ledger.StatusAbandoned {
		t.Errorf("record = %+v, want abandoned", rec)
	}
}

func TestAbortDeletesBranchOnRequest(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	res := mustCreate(t, env, "feature/doomed", "main")
	commitFile(t, res.Path, "unmerged.txt") // abort bypasses merge checks

	ares, err := env.Abort(logCtx(), AbortRequest{Branch: "feature/doomed", DeleteBranch: true})
	if err != nil {
		t.Fatalf("Abort = %v", err)
	}
	if !ares.BranchDeleted {
		t.Error("BranchDeleted = false")
	}
	if out, err := exec.Command("git", "-C", repo, "rev-parse", "--verify", "refs/heads/feature/doomed").CombinedOutput(); err == nil {
		t.Errorf("branch still exists: %s", out)
	}
}

func TestAbortProtectedNeedsAck(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	gitRun(t, repo, "branch", "develop")
	env := testEnv(t, repo, "main", "develop")

	wt := filepath.Join(env.WorktreeBase, "develop")
	gitRun(t, repo, "worktree", "add", wt, "develop")

	_, err := env.Abort(logCtx(), AbortRequest{Branch: "develop", DeleteBranch: true})
	pe := wantCode(t, err, protocol.CodeBranchProtected)
	if !strings.Contains(pe.Message, "preserve branch") {
		t.Errorf("message = %q, want preserve-branch confirmation framing", pe.Message)
	}

	ares, err := env.Abort(logCtx(), AbortRequest{Branch: "develop", DeleteBranch: true, KeepBranchAck: true})
	if err != nil {
		t.Fatalf("Abort acked = %v", err)
	}
	if !ares.WorktreeRemoved || ares.BranchDeleted {
		t.Errorf("result = %+v, want worktree removed and branch kept", ares)
	}
	if out, err := exec.Command("git", "-C", repo, "rev-parse", "--verify", "refs/heads/develop").CombinedOutput(); err != nil {
		t.Fatalf("protected branch gone: %v\n%s", err, out)
	}
}

func TestAbortNotFound(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	_, err := env.Abort(logCtx(), AbortRequest{Branch: "feature/nowhere"})
	wantCode(t, err, protocol.CodeWorktreeNotFound)
}

func TestCreateScanRoundTrip(t *testing.T) {
	t.Parallel()
	repo := setupRepo(t)
	env := testEnv(t, repo, "main")

	mustCreate(t, env, "feature/a", "main")
	mustCreate(t, env, "feature/b", "main")

	res, err := env.Scan(logCtx(), ScanRequest{})
	if err != nil {
		t.Fatalf("Scan = %v", err)
	}
	if len(res.Worktrees) != 2 {
		t.Fatalf("got %d worktrees, want 2", len(res.Worktrees))
	}
	for _, wt := range res.Worktrees {
		if !wt.Tracked {
			t.Errorf("%s not tracked after create", wt.Branch)
		}
	}
	if len(res.TrackingMissingRows) != 0 || len(res.TrackingExtraRows) != 0 {
		t.Errorf("drift after round trip: missing=%v extra=%v", res.TrackingMissingRows, res.TrackingExtraRows)
	}
}
