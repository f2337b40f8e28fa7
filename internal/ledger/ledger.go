// Package ledger manages the per-repo tracking ledger at
// <repo>/.treekeep/ledger.jsonl: one JSON record per line, one record per
// known worktree. The ledger is kept independent of git's own worktree
// list so cleanup decisions stay auditable after the worktree is gone.
package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/treekeep/treekeep/internal/settings"
)

// Status is the lifecycle state of a tracked worktree.
type Status string

const (
	// StatusActive marks a worktree created by treekeep and still in use.
	StatusActive Status = "active"
	// StatusDiscovered marks a worktree found during reconciliation that
	// was created outside the tool. Kept distinct from active records to
	// preserve provenance.
	StatusDiscovered Status = "discovered"
	// StatusCleaned marks a worktree removed by the cleanup engine.
	StatusCleaned Status = "cleaned"
	// StatusAbandoned marks a worktree discarded by the abort engine.
	StatusAbandoned Status = "abandoned"
)

// Record is one tracked worktree.
type Record struct {
	ID          string    `json:"id"`
	Branch      string    `json:"branch"`
	Path        string    `json:"path"`
	Base        string    `json:"base,omitempty"`
	Purpose     string    `json:"purpose,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	Created     time.Time `json:"created"`
	LastChecked time.Time `json:"last_checked"`
	Status      Status    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
}

// NewRecord creates a record with a fresh id and timestamps set to now.
func NewRecord(branch, path, base, purpose, owner string, status Status) Record {
	now := time.Now().UTC()
	return Record{
		ID:          uuid.NewString(),
		Branch:      branch,
		Path:        path,
		Base:        base,
		Purpose:     purpose,
		Owner:       owner,
		Created:     now,
		LastChecked: now,
		Status:      status,
	}
}

// Ledger holds all tracked worktree records in file order.
type Ledger struct {
	Records []Record
}

// Path returns the ledger file path for a repo.
func Path(repoRoot string) string {
	return filepath.Join(settings.StateDir(repoRoot), "ledger.jsonl")
}

// lockPath returns the advisory lock file path for a repo.
func lockPath(repoRoot string) string {
	return filepath.Join(settings.StateDir(repoRoot), "ledger.lock")
}

// Load reads the ledger for a repo.
// A missing file yields an empty ledger (tracking is still considered
// enabled); a present but unparsable file is an error so the caller can
// surface TRACKING.MISSING.
func Load(repoRoot string) (*Ledger, error) {
	data, err := os.ReadFile(Path(repoRoot))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Ledger{}, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	l := &Ledger{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("parse ledger line %d: %w", line, err)
		}
		l.Records = append(l.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return l, nil
}

// LoadLocked loads the ledger under an exclusive advisory lock.
// The returned unlock func must be called after the final Save. Mutating
// operations use this to guard their read-modify-write cycle; the atomic
// rename in Save remains the corruption guard for readers.
func LoadLocked(repoRoot string) (*Ledger, func(), error) {
	if err := os.MkdirAll(settings.StateDir(repoRoot), 0755); err != nil {
		return nil, nil, fmt.Errorf("create state dir: %w", err)
	}

	lock := newFileLock(lockPath(repoRoot))
	if err := lock.Lock(); err != nil {
		return nil, nil, fmt.Errorf("lock ledger: %w", err)
	}

	l, err := Load(repoRoot)
	if err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	return l, func() { lock.Unlock() }, nil
}

// Save writes the ledger atomically (write-temp, rename).
func (l *Ledger) Save(repoRoot string) error {
	if err := os.MkdirAll(settings.StateDir(repoRoot), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	var buf bytes.Buffer
	for _, rec := range l.Records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", rec.Branch, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	path := Path(repoRoot)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // Clean up temp file on failure
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

// Find returns the record for a branch, or nil.
func (l *Ledger) Find(branch string) *Record {
	for i := range l.Records {
		if l.Records[i].Branch == branch {
			return &l.Records[i]
		}
	}
	return nil
}

// Upsert replaces the record for rec.Branch or appends a new one.
func (l *Ledger) Upsert(rec Record) {
	if existing := l.Find(rec.Branch); existing != nil {
		*existing = rec
		return
	}
	l.Records = append(l.Records, rec)
}

// Remove deletes the record for a branch.
// Callers must only do this once both the local worktree directory and
// the remote branch are confirmed gone.
func (l *Ledger) Remove(branch string) bool {
	for i := range l.Records {
		if l.Records[i].Branch == branch {
			l.Records = append(l.Records[:i], l.Records[i+1:]...)
			return true
		}
	}
	return false
}

// LiveWorktree is the subset of git worktree state reconciliation needs.
type LiveWorktree struct {
	Branch string
	Path   string
}

// ReconcileResult reports ledger drift against live git state.
type ReconcileResult struct {
	// Discovered lists records created for live worktrees the ledger
	// didn't know about (worktrees created outside the tool).
	Discovered []Record
	// Stale lists records whose worktree path no longer exists on disk.
	// Reconciliation never deletes them; disposition is the caller's call.
	Stale []Record
}

// Reconcile aligns the ledger with the live worktree list. For every live
// worktree without a record a discovered record is added; records whose
// path is gone are flagged stale. Runs before any batch cleanup so
// manually created worktrees are not silently ignored.
func (l *Ledger) Reconcile(live []LiveWorktree) ReconcileResult {
	var result ReconcileResult

	for _, lw := range live {
		if lw.Branch == "" || lw.Branch == "(detached)" {
			continue
		}
		if rec := l.Find(lw.Branch); rec != nil {
			rec.LastChecked = time.Now().UTC()
			continue
		}
		rec := NewRecord(lw.Branch, lw.Path, "", "", "", StatusDiscovered)
		rec.Notes = "found during reconciliation, created outside treekeep"
		l.Records = append(l.Records, rec)
		result.Discovered = append(result.Discovered, rec)
	}

	for i := range l.Records {
		rec := &l.Records[i]
		if rec.Status == StatusCleaned || rec.Status == StatusAbandoned {
			continue
		}
		if _, err := os.Stat(rec.Path); errors.Is(err, os.ErrNotExist) {
			result.Stale = append(result.Stale, *rec)
		}
	}

	return result
}
