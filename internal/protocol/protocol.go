// Package protocol defines the JSON request/result envelope shared by all
// treekeep operations. Every operation accepts one JSON object and returns
// one JSON object of the form:
//
//	{"success": bool, "data": {...}|null, "error": {...}|null}
package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// Error codes. Grouped by taxonomy: environment errors are fatal and
// surfaced verbatim, state-conflict errors are recoverable and require a
// caller decision, configuration errors fail closed, and GIT.ERROR is
// fatal for the current step only.
const (
	CodeGitNotRepo               = "GIT.NOT_REPO"
	CodeGitError                 = "GIT.ERROR"
	CodeBranchNotFound           = "BRANCH.NOT_FOUND"
	CodeBranchProtected          = "BRANCH.PROTECTED"
	CodeWorktreeExists           = "WORKTREE.EXISTS"
	CodeWorktreeBranchInUse      = "WORKTREE.BRANCH_IN_USE"
	CodeWorktreeNotFound         = "WORKTREE.NOT_FOUND"
	CodeWorktreeDirty            = "WORKTREE.DIRTY"
	CodeWorktreeUnmerged         = "WORKTREE.UNMERGED"
	CodeProtectedBranchesMissing = "CONFIG.PROTECTED_BRANCHES_MISSING"
	CodeTrackingMissing          = "TRACKING.MISSING"
)

// Error is a structured operation error carried in the result envelope.
type Error struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	Recoverable     bool   `json:"recoverable"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a structured error.
func NewError(code string, recoverable bool, format string, args ...any) *Error {
	return &Error{
		Code:        code,
		Message:     fmt.Sprintf(format, args...),
		Recoverable: recoverable,
	}
}

// WithSuggestion attaches a suggested_action string and returns the error.
func (e *Error) WithSuggestion(format string, args ...any) *Error {
	e.SuggestedAction = fmt.Sprintf(format, args...)
	return e
}

// Result is the envelope returned by every operation.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Error   *Error `json:"error"`
}

// Ok wraps data in a success envelope.
func Ok(data any) Result {
	return Result{Success: true, Data: data}
}

// Fail wraps an error in a failure envelope.
// Arbitrary errors are coerced to a fatal GIT.ERROR.
func Fail(err error) Result {
	return Result{Success: false, Error: AsError(err)}
}

// AsError converts any error into a protocol error.
// Errors that are not already *Error become fatal GIT.ERROR.
func AsError(err error) *Error {
	if pe, ok := err.(*Error); ok {
		return pe
	}
	return NewError(CodeGitError, false, "%v", err)
}

// Write encodes the envelope as indented JSON to w.
func (r Result) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// DecodeRequest parses a JSON request payload into dest.
// An empty payload is treated as "{}" so batch operations can be invoked
// without arguments.
func DecodeRequest(payload []byte, dest any) error {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("invalid request payload: %w", err)
	}
	return nil
}
