package git

import (
	"gopkg.in/src-d/go-errors.v1"
)

var (
	ErrNotARepository      = errors.NewKind("%s is not a git repository")
	ErrDetachedHead        = errors.NewKind("HEAD is detached; check out a branch first")
	ErrOperationInProgress = errors.NewKind("a %s is in progress; finish or abort it first")
	ErrNoCommits           = errors.NewKind("branch %s has no commits")
	ErrRevisionNotFound    = errors.NewKind("revision '%s' not found")
	ErrAmbiguousRevision   = errors.NewKind("short commit hash '%s' is ambiguous")
	ErrNoBackup            = errors.NewKind("no backup ref for branch %s")
)
