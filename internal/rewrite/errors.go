package rewrite

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"gopkg.in/src-d/go-errors.v1"
)

var (
	ErrCyclicReorder = errors.NewKind("reorder of %s would place it before one of its parents")
	// ErrEmptyHistory is returned when every loaded commit is deleted and nothing remains to point the branch at.
	ErrEmptyHistory = errors.NewKind("all commits on %s would be deleted")

	ErrDirtyTreeStashFailed = errors.NewKind("could not stash uncommitted changes")
	ErrBackupRefExists      = errors.NewKind("backup ref %s already exists; restore or drop it first")
	ErrRefUpdateConflict    = errors.NewKind("%s moved since the history was loaded (expected %s)")
	// ErrStashRestoreFailed is reported as a warning after a successful rewrite.
	ErrStashRestoreFailed = errors.NewKind("rewrite succeeded but stash %s could not be restored; run 'git stash pop' manually")
)

// RewriteError reports the commit at which a rewrite aborted.
type RewriteError struct {
	At    plumbing.Hash
	Cause error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("rewrite failed at %s: %v", e.At.String()[:7], e.Cause)
}

func (e *RewriteError) Unwrap() error {
	return e.Cause
}
