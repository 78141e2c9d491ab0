package state

import (
	"fmt"

	"gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrUnknownCommit is returned when an identity is not part of the loaded snapshot.
	ErrUnknownCommit = errors.NewKind("unknown commit %s")
	// ErrMergeCommitUnreorderable is returned when a move would displace a merge commit.
	ErrMergeCommitUnreorderable = errors.NewKind("merge commit %s cannot be reordered")
	// ErrNotLinearlyAdjacent is returned when two neighbouring rows are not a
	// parent and its only child, e.g. tips of sibling branches.
	ErrNotLinearlyAdjacent = errors.NewKind("%s and %s are not on one line of history")
	// ErrPositionOutOfRange is returned for a display position outside [0, n).
	ErrPositionOutOfRange = errors.NewKind("position %d out of range [0, %d)")
	ErrNothingToUndo      = errors.NewKind("nothing to undo")
	ErrNothingToRedo      = errors.NewKind("nothing to redo")
)

// ValidationError rejects a raw field value before it reaches the pending store.
type ValidationError struct {
	Field  Field
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func invalid(f Field, raw, reason string) error {
	return &ValidationError{Field: f, Value: raw, Reason: reason}
}
